package device

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrNoHeaderOps   = errors.New("device has no header ops")
	ErrNoSetup       = errors.New("device setup function is required")
	ErrInvalidName   = errors.New("invalid device name template")
	ErrNameInUse     = errors.New("device name already in use")
	ErrInvalidQueues = errors.New("queue count must be at least 1")
)

// maxNameIndex bounds the search for a free "%d" slot.
const maxNameIndex = 1 << 15

type Options struct {
	// NameTemplate is either a plain name or a pattern with one "%d" verb,
	// which is replaced by the lowest free index.
	NameTemplate string
	// HardwareAddr is the device's own address. When nil the device gets an
	// all-zero address of the configured length.
	HardwareAddr net.HardwareAddr
	TxQueues     int
	RxQueues     int
	Setup        SetupFunc
}

// Allocator hands out device descriptors with unique names.
type Allocator struct {
	mu   sync.Mutex
	used map[string]struct{}
}

func NewAllocator() *Allocator {
	return &Allocator{used: make(map[string]struct{})}
}

var defaultAllocator = NewAllocator()

// Alloc allocates a device from the process-wide allocator.
func Alloc(opt Options) (*Descriptor, error) {
	return defaultAllocator.Alloc(opt)
}

// Release frees a name taken from the process-wide allocator.
func Release(name string) {
	defaultAllocator.Release(name)
}

// Alloc runs opt.Setup on a fresh parameter set, validates the hardware
// address and reserves a device name.
func (a *Allocator) Alloc(opt Options) (*Descriptor, error) {
	if opt.Setup == nil {
		return nil, ErrNoSetup
	}
	if opt.TxQueues < 1 || opt.RxQueues < 1 {
		return nil, errors.Wrapf(ErrInvalidQueues, "tx=%d rx=%d", opt.TxQueues, opt.RxQueues)
	}

	d := &Descriptor{
		txQueues: opt.TxQueues,
		rxQueues: opt.RxQueues,
	}
	opt.Setup(&d.params)

	if opt.HardwareAddr != nil {
		if err := d.ValidateAddr(opt.HardwareAddr); err != nil {
			return nil, err
		}
		d.addr = append(net.HardwareAddr(nil), opt.HardwareAddr...)
	} else {
		d.addr = make(net.HardwareAddr, d.params.AddrLen)
	}

	name, err := a.allocName(opt.NameTemplate)
	if err != nil {
		return nil, err
	}
	d.name = name
	return d, nil
}

func (a *Allocator) Release(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.used, name)
}

func (a *Allocator) allocName(template string) (string, error) {
	if template == "" || strings.ContainsAny(template, "/ \t\n") {
		return "", errors.Wrapf(ErrInvalidName, "%q", template)
	}

	verbs := strings.Count(template, "%")
	if verbs > 1 || (verbs == 1 && !strings.Contains(template, "%d")) {
		return "", errors.Wrapf(ErrInvalidName, "%q", template)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if verbs == 0 {
		if _, ok := a.used[template]; ok {
			return "", errors.Wrapf(ErrNameInUse, "%q", template)
		}
		a.used[template] = struct{}{}
		return template, nil
	}

	for i := 0; i < maxNameIndex; i++ {
		name := fmt.Sprintf(template, i)
		if _, ok := a.used[name]; ok {
			continue
		}
		a.used[name] = struct{}{}
		return name, nil
	}
	return "", errors.Wrapf(ErrNameInUse, "no free index for %q", template)
}
