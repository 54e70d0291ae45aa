package hwport

import "fmt"

// Open opens the port of the given kind. path is ignored for KindDisabled.
func Open(kind Kind, path string, opts PortOptions) (Port, error) {
	switch kind {
	case KindSerial:
		if path == "" {
			return nil, fmt.Errorf("serial port path is required")
		}
		p, err := OpenSerialPort(path, opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindParallel:
		if path == "" {
			return nil, fmt.Errorf("parallel port path is required")
		}
		p, err := OpenParallelPort(path)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindDisabled:
		return NewDisabledPort(), nil
	default:
		return nil, fmt.Errorf("unknown port kind %q", kind)
	}
}
