package link

import (
	"context"
	"io"
	"net"
	"sort"
	"strings"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"go.bug.st/serial"
)

// Port is an open byte stream to a device. Read returns 0, nil when its
// read timeout elapses without data.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens the Port behind an endpoint.
type Opener interface {
	Open(ctx context.Context, endpoint string) (Port, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, endpoint string) (Port, error)

func (f OpenerFunc) Open(ctx context.Context, endpoint string) (Port, error) {
	return f(ctx, endpoint)
}

const (
	schemeSerial = "serial://"
	schemeTCP    = "tcp://"
)

// DeviceOpener opens serial device paths and tcp://host:port bridges.
type DeviceOpener struct {
	Options PortOptions
}

// NewDeviceOpener returns an Opener for real devices.
func NewDeviceOpener(opts PortOptions) *DeviceOpener {
	return &DeviceOpener{Options: opts}
}

func (o *DeviceOpener) Open(ctx context.Context, endpoint string) (Port, error) {
	errFactory := errors.New()

	opts, err := o.Options.Normalize()
	if err != nil {
		return nil, errFactory.Wrap(ErrConnection, err)
	}

	endpoint = strings.TrimSpace(endpoint)
	switch {
	case endpoint == "":
		return nil, errFactory.WithData(ErrConnection, "empty endpoint")
	case strings.HasPrefix(endpoint, schemeTCP):
		return openTCP(ctx, strings.TrimPrefix(endpoint, schemeTCP), opts.ReadTimeout)
	default:
		return openSerial(strings.TrimPrefix(endpoint, schemeSerial), opts)
	}
}

func openSerial(path string, opts PortOptions) (Port, error) {
	errFactory := errors.New()

	mode, err := opts.SerialMode()
	if err != nil {
		return nil, errFactory.Wrap(ErrConnection, err)
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortBusy {
			return nil, errFactory.Wrap(ErrConnection, errFactory.Wrap(ErrBusy, err))
		}
		return nil, errFactory.Wrap(ErrConnection, err)
	}

	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		port.Close()
		return nil, errFactory.Wrap(ErrConnection, err)
	}

	return port, nil
}

func openTCP(ctx context.Context, addr string, timeout time.Duration) (Port, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.New().Wrap(ErrConnection, err)
	}

	return &netPort{conn: conn, timeout: timeout}, nil
}

// netPort gives a net.Conn the timeout semantics of a serial port.
type netPort struct {
	conn    net.Conn
	timeout time.Duration
}

func (p *netPort) Read(b []byte) (int, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(p.timeout)); err != nil {
		return 0, err
	}

	n, err := p.conn.Read(b)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return n, nil
	}

	return n, err
}

func (p *netPort) Write(b []byte) (int, error) {
	return p.conn.Write(b)
}

func (p *netPort) Close() error {
	return p.conn.Close()
}

// ListPorts returns the serial ports present on this machine, sorted.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.New().Wrap(ErrListPorts, err)
	}

	sort.Strings(ports)
	return ports, nil
}
