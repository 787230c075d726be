package phone

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// События автомата звонка
const (
	evCall     = "call"
	evProgress = "progress"
	evRing     = "ring"
	evConfirm  = "confirm"
	evFail     = "fail"
	evEnd      = "end"
	evReset    = "reset"
)

var idleStates = []string{string(StatusDisconnected), string(StatusFailed), string(StatusEnded)}

// callStateMachine таблица переходов статуса звонка. Колбэков нет:
// побочные эффекты выполняет менеджер после успешного перехода.
type callStateMachine struct {
	f *fsm.FSM
}

func newCallStateMachine() *callStateMachine {
	return &callStateMachine{f: fsm.NewFSM(
		string(StatusDisconnected),
		fsm.Events{
			// Исходящий звонок
			{Name: evCall, Src: idleStates, Dst: string(StatusProgress)},
			// Повторный 1xx
			{Name: evProgress, Src: []string{string(StatusProgress)}, Dst: string(StatusProgress)},
			// Входящий звонок
			{Name: evRing, Src: idleStates, Dst: string(StatusRinging)},
			{Name: evConfirm, Src: []string{string(StatusProgress), string(StatusRinging)}, Dst: string(StatusConfirmed)},
			{Name: evFail, Src: []string{string(StatusProgress), string(StatusRinging), string(StatusConfirmed)}, Dst: string(StatusFailed)},
			{Name: evEnd, Src: []string{string(StatusProgress), string(StatusConfirmed)}, Dst: string(StatusEnded)},
			// Возврат в исходное состояние по таймеру или после отклонения
			{Name: evReset, Src: []string{string(StatusFailed), string(StatusEnded), string(StatusRinging)}, Dst: string(StatusDisconnected)},
		},
		fsm.Callbacks{},
	)}
}

func (m *callStateMachine) Current() Status {
	return Status(m.f.Current())
}

func (m *callStateMachine) Can(event string) bool {
	return m.f.Can(event)
}

// Fire выполняет событие. changed=false при допустимом переходе в то же
// состояние; ошибка для события, недопустимого в текущем состоянии.
func (m *callStateMachine) Fire(event string) (changed bool, err error) {
	err = m.f.Event(context.Background(), event)
	if err == nil {
		return true, nil
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return false, nil
	}
	return false, err
}
