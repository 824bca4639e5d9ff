package device_test

import (
	gomock "go.uber.org/mock/gomock"

	"i4.energy/across/btconf/at"
	"i4.energy/across/btconf/device"
)

type MockSequenceBuilder struct {
	transport *device.MockTransport
	calls     []any
}

func NewMockSequence(transport *device.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// DiscardInput expects the stale input flush that starts a read batch.
func (b *MockSequenceBuilder) DiscardInput() *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().ResetInputBuffer().Return(nil),
	)
	return b
}

// FlushAll expects the input and output flush that starts a write batch.
func (b *MockSequenceBuilder) FlushAll() *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().ResetInputBuffer().Return(nil),
		b.transport.EXPECT().ResetOutputBuffer().Return(nil),
	)
	return b
}

// Query expects "AT+<command>?" and answers with the raw response in a
// single read.
func (b *MockSequenceBuilder) Query(command, response string) *MockSequenceBuilder {
	return b.exchange(at.Query(command), response)
}

// Set expects the full write request line and answers with the raw response.
func (b *MockSequenceBuilder) Set(request, response string) *MockSequenceBuilder {
	return b.exchange(request, response)
}

// Silent expects one read that times out.
func (b *MockSequenceBuilder) Silent() *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Read(gomock.Any()).Return(0, nil),
	)
	return b
}

func (b *MockSequenceBuilder) exchange(request, response string) *MockSequenceBuilder {
	wire := []byte(request + at.CRLF)
	b.calls = append(b.calls,
		b.transport.EXPECT().Write(wire).Return(len(wire), nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, response), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
