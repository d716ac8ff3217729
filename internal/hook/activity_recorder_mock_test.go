package hook

import (
	"context"
	"sync"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

var _ activityRecorder = &activityRecorderMock{}

type activityRecorderMock struct {
	RecordActivityFunc func(ctx context.Context, a domain.Activity) error

	calls struct {
		RecordActivity []struct {
			Ctx context.Context
			A   domain.Activity
		}
	}
	lockRecordActivity sync.RWMutex
}

func (mock *activityRecorderMock) RecordActivity(ctx context.Context, a domain.Activity) error {
	if mock.RecordActivityFunc == nil {
		panic("activityRecorderMock.RecordActivityFunc: method is nil but activityRecorder.RecordActivity was just called")
	}
	callInfo := struct {
		Ctx context.Context
		A   domain.Activity
	}{Ctx: ctx, A: a}
	mock.lockRecordActivity.Lock()
	mock.calls.RecordActivity = append(mock.calls.RecordActivity, callInfo)
	mock.lockRecordActivity.Unlock()
	return mock.RecordActivityFunc(ctx, a)
}

func (mock *activityRecorderMock) RecordActivityCalls() []struct {
	Ctx context.Context
	A   domain.Activity
} {
	mock.lockRecordActivity.RLock()
	calls := mock.calls.RecordActivity
	mock.lockRecordActivity.RUnlock()
	return calls
}
