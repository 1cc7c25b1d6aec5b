package mocks

import (
	"context"
	"reflect"
	"time"

	"github.com/golang/mock/gomock"

	"gradebook_service/internal/domain"
)

type MockMessenger struct {
	ctrl     *gomock.Controller
	recorder *MockMessengerMockRecorder
}

type MockMessengerMockRecorder struct {
	mock *MockMessenger
}

func NewMockMessenger(ctrl *gomock.Controller) *MockMessenger {
	mock := &MockMessenger{ctrl: ctrl}
	mock.recorder = &MockMessengerMockRecorder{mock}
	return mock
}

func (m *MockMessenger) EXPECT() *MockMessengerMockRecorder {
	return m.recorder
}

func (m *MockMessenger) Send(ctx context.Context, address, templateID string, data map[string]any) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Send", ctx, address, templateID, data)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockMessengerMockRecorder) Send(ctx, address, templateID, data interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Send", reflect.TypeOf((*MockMessenger)(nil).Send), ctx, address, templateID, data)
}

type MockNetworkProbe struct {
	ctrl     *gomock.Controller
	recorder *MockNetworkProbeMockRecorder
}

type MockNetworkProbeMockRecorder struct {
	mock *MockNetworkProbe
}

func NewMockNetworkProbe(ctrl *gomock.Controller) *MockNetworkProbe {
	mock := &MockNetworkProbe{ctrl: ctrl}
	mock.recorder = &MockNetworkProbeMockRecorder{mock}
	return mock
}

func (m *MockNetworkProbe) EXPECT() *MockNetworkProbeMockRecorder {
	return m.recorder
}

func (m *MockNetworkProbe) CheckNetwork(ctx context.Context, host string, timeout time.Duration) domain.Reachability {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CheckNetwork", ctx, host, timeout)
	ret0, _ := ret[0].(domain.Reachability)
	return ret0
}

func (mr *MockNetworkProbeMockRecorder) CheckNetwork(ctx, host, timeout interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CheckNetwork", reflect.TypeOf((*MockNetworkProbe)(nil).CheckNetwork), ctx, host, timeout)
}
