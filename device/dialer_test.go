package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/mock/gomock"
)

// fakePort satisfies serial.Port; only the methods Dial uses are implemented.
type fakePort struct {
	serial.Port
	timeout    time.Duration
	timeoutErr error
	closed     bool
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return p.timeoutErr
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func stubOpenPort(t *testing.T, fn func(string, *serial.Mode) (serial.Port, error)) {
	t.Helper()
	orig := openPort
	openPort = fn
	t.Cleanup(func() { openPort = orig })
}

func TestSerialDialer_Dial_EmptyPortName(t *testing.T) {
	dialer := SerialDialer{
		PortName: "",
	}

	transport, err := dialer.Dial(context.Background())

	if err == nil {
		t.Fatal("expected error for empty port name")
	}
	if transport != nil {
		t.Error("expected nil transport for empty port name")
	}
	if err.Error() != "device: serial port name is required" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_NilContext(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/rfcomm0",
	}

	transport, err := dialer.Dial(nil)

	if err == nil {
		t.Fatal("expected error for nil context")
	}
	if transport != nil {
		t.Error("expected nil transport for nil context")
	}
	if err.Error() != "device: context is nil" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_ContextCanceled(t *testing.T) {
	stubOpenPort(t, func(string, *serial.Mode) (serial.Port, error) {
		t.Error("port must not be opened with a canceled context")
		return nil, errors.New("unexpected open")
	})

	dialer := SerialDialer{
		PortName: "/dev/rfcomm0",
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport, err := dialer.Dial(ctx)

	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport for canceled context")
	}
}

func TestSerialDialer_Dial_DefaultMode(t *testing.T) {
	port := &fakePort{}
	var gotName string
	var gotMode *serial.Mode
	stubOpenPort(t, func(name string, mode *serial.Mode) (serial.Port, error) {
		gotName, gotMode = name, mode
		return port, nil
	})

	dialer := SerialDialer{PortName: "/dev/rfcomm0"}
	transport, err := dialer.Dial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transport != port {
		t.Error("expected the opened port to be returned")
	}
	if gotName != "/dev/rfcomm0" {
		t.Errorf("expected port name /dev/rfcomm0, got %q", gotName)
	}
	if gotMode.BaudRate != DefaultBaudRate || gotMode.DataBits != 8 ||
		gotMode.Parity != serial.NoParity || gotMode.StopBits != serial.OneStopBit {
		t.Errorf("unexpected default mode: %+v", gotMode)
	}
	if port.timeout != DefaultTimeout {
		t.Errorf("expected read timeout %v, got %v", DefaultTimeout, port.timeout)
	}
}

func TestSerialDialer_Dial_WithMode(t *testing.T) {
	port := &fakePort{}
	mode := &serial.Mode{
		BaudRate: 9600,
		Parity:   serial.EvenParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	stubOpenPort(t, func(_ string, m *serial.Mode) (serial.Port, error) {
		if m != mode {
			t.Errorf("expected explicit mode, got %+v", m)
		}
		return port, nil
	})

	dialer := SerialDialer{PortName: "COM5", BaudRate: 115200, Mode: mode, ReadTimeout: time.Second}
	if _, err := dialer.Dial(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port.timeout != time.Second {
		t.Errorf("expected read timeout 1s, got %v", port.timeout)
	}
}

func TestSerialDialer_Dial_OpenError(t *testing.T) {
	openErr := errors.New("no such file or directory")
	stubOpenPort(t, func(string, *serial.Mode) (serial.Port, error) {
		return nil, openErr
	})

	transport, err := SerialDialer{PortName: "/dev/nonexistent"}.Dial(context.Background())
	if !errors.Is(err, openErr) {
		t.Errorf("expected wrapped open error, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport for open failure")
	}
}

func TestSerialDialer_Dial_TimeoutErrorClosesPort(t *testing.T) {
	port := &fakePort{timeoutErr: errors.New("not supported")}
	stubOpenPort(t, func(string, *serial.Mode) (serial.Port, error) {
		return port, nil
	})

	if _, err := (SerialDialer{PortName: "/dev/rfcomm0"}).Dial(context.Background()); err == nil {
		t.Fatal("expected error when the read timeout cannot be set")
	}
	if !port.closed {
		t.Error("expected port to be closed after setup failure")
	}
}

func TestListPorts(t *testing.T) {
	orig := detailedPorts
	t.Cleanup(func() { detailedPorts = orig })

	detailedPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "10c4", PID: "ea60", SerialNumber: "0001"},
			{Name: "/dev/rfcomm0"},
		}, nil
	}

	ports, err := ListPorts()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ports) != 2 {
		t.Fatalf("expected 2 ports, got %d", len(ports))
	}
	if ports[0].Name != "/dev/ttyUSB0" || !ports[0].IsUSB || ports[0].VID != "10c4" {
		t.Errorf("unexpected first port: %+v", ports[0])
	}
	if ports[1].IsUSB {
		t.Errorf("expected second port to be non-USB: %+v", ports[1])
	}

	detailedPorts = func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("no access")
	}
	if _, err := ListPorts(); err == nil {
		t.Error("expected enumeration error")
	}
}

// Test the interface compliance
func TestTransportInterface(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransport := NewMockTransport(ctrl)

	var _ Transport = mockTransport
	var _ Transport = serial.Port(nil)

	data := []byte("AT+NAME?\r\n")
	mockTransport.EXPECT().Write(data).Return(len(data), nil)
	mockTransport.EXPECT().Read(gomock.Any()).Return(4, nil)
	mockTransport.EXPECT().ResetInputBuffer().Return(nil)
	mockTransport.EXPECT().Close().Return(nil)

	n, err := mockTransport.Write(data)
	if err != nil {
		t.Errorf("unexpected write error: %v", err)
	}
	if n != len(data) {
		t.Errorf("expected %d bytes written, got %d", len(data), n)
	}

	buf := make([]byte, 10)
	n, err = mockTransport.Read(buf)
	if err != nil {
		t.Errorf("unexpected read error: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 bytes read, got %d", n)
	}

	if err := mockTransport.ResetInputBuffer(); err != nil {
		t.Errorf("unexpected reset error: %v", err)
	}

	err = mockTransport.Close()
	if err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}

func TestDialerInterface(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDialer := NewMockDialer(ctrl)
	mockTransport := NewMockTransport(ctrl)

	var _ Dialer = mockDialer
	var _ Dialer = SerialDialer{}

	ctx := context.Background()
	mockDialer.EXPECT().Dial(ctx).Return(mockTransport, nil)

	transport, err := mockDialer.Dial(ctx)
	if err != nil {
		t.Errorf("unexpected dial error: %v", err)
	}
	if transport != mockTransport {
		t.Error("expected mock transport to be returned")
	}
}
