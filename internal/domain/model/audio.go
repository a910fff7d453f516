// Пакет model — доменные модели Audio Server.
// AudioRecord — метаданные одной аудиозаписи, хранятся в Metadata Store
// и ссылаются на файл в Blob Store по FileName.
package model

import (
	"time"
)

// AudioRecord — метаданные аудиозаписи. Создаётся при успешной загрузке,
// никогда не обновляется, удаляется вместе со своим файлом.
type AudioRecord struct {
	// ID — идентификатор записи, назначается Metadata Store при создании (UUID v4)
	ID string `json:"id"`

	// AudioURL — абсолютный публичный URL файла (/uploads/{fileName})
	AudioURL string `json:"audioURL"`

	// FileName — имя файла на диске в Blob Store.
	// Формат: {field}-{unix_millis}{ext}
	FileName string `json:"fileName"`

	// CreatedAt — дата и время создания записи (UTC)
	CreatedAt time.Time `json:"createdAt"`
}

// Clone возвращает независимую копию записи.
func (r *AudioRecord) Clone() *AudioRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
