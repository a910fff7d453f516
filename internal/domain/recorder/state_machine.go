// Пакет recorder — клиентская запись аудио с микрофона.
//
// Жизненный цикл записи:
//   - idle → recording (start): запрос доступа к микрофону
//   - recording → reviewing (stop, timeout): запись остановлена, клип собран
//   - recording → idle (start_failed): устройство недоступно или нет разрешения
//   - reviewing → idle (save): клип загружен на сервер
//   - reviewing → recording (start): текущий клип отбрасывается
//
// Потокобезопасен через sync.RWMutex.
package recorder

import (
	"fmt"
	"sync"
	"time"
)

// State — состояние записи.
type State string

const (
	// StateIdle — запись не ведётся, клипа нет
	StateIdle State = "idle"
	// StateRecording — идёт захват звука
	StateRecording State = "recording"
	// StateReviewing — клип собран и ожидает сохранения
	StateReviewing State = "reviewing"
)

// Event — событие, вызывающее переход.
type Event string

const (
	EventStart       Event = "start"
	EventStartFailed Event = "start_failed"
	EventStop        Event = "stop"
	EventTimeout     Event = "timeout"
	EventSave        Event = "save"
)

// TransitionRecord — запись о выполненном переходе.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// TransitionError — ошибка недопустимого перехода.
type TransitionError struct {
	Code    string
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// transitions — матрица допустимых переходов: состояние → событие → новое состояние.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventStart: StateRecording,
	},
	StateRecording: {
		EventStop:        StateReviewing,
		EventTimeout:     StateReviewing,
		EventStartFailed: StateIdle,
	},
	StateReviewing: {
		EventSave:  StateIdle,
		EventStart: StateRecording,
	},
}

// StateMachine — конечный автомат записи.
type StateMachine struct {
	mu      sync.RWMutex
	current State
	history []TransitionRecord
}

// NewStateMachine создаёт автомат в состоянии idle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		history: make([]TransitionRecord, 0),
	}
}

// Current возвращает текущее состояние.
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Can проверяет, допустимо ли событие в текущем состоянии.
func (sm *StateMachine) Can(event Event) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := transitions[sm.current][event]
	return ok
}

// Fire выполняет переход по событию.
// Возвращает *TransitionError с кодом INVALID_TRANSITION, если событие недопустимо.
func (sm *StateMachine) Fire(event Event) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	target, ok := transitions[sm.current][event]
	if !ok {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("событие %s недопустимо в состоянии %s", event, sm.current),
		}
	}

	sm.history = append(sm.history, TransitionRecord{
		From:      sm.current,
		To:        target,
		Event:     event,
		Timestamp: time.Now().UTC(),
	})
	sm.current = target
	return nil
}

// History возвращает копию истории переходов.
func (sm *StateMachine) History() []TransitionRecord {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]TransitionRecord, len(sm.history))
	copy(result, sm.history)
	return result
}
