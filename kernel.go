package audiograph

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

// Kernel is the processing unit of a node.
//
// Initialize runs once on the render path when the node is created. Execute
// runs once per quantum while the node is scheduled, possibly concurrently
// with other nodes' kernels but never with itself. Dispose runs when the node
// is cleared, after which any memory obtained from InitContext.Allocate is
// reclaimed. None of these may block.
type Kernel interface {
	Initialize(ctx *InitContext) error
	Execute(ctx *ExecuteContext)
	Dispose()
}

// KernelPointer constrains P to be a pointer to K that implements Kernel.
type KernelPointer[K any] interface {
	*K
	Kernel
}

// ProviderShape is the arity of a sample provider slot.
type ProviderShape uint8

const (
	// ProviderSingle holds exactly one (possibly nil) provider.
	ProviderSingle ProviderShape = iota
	// ProviderFixedArray holds Size providers, set by index.
	ProviderFixedArray
	// ProviderVariableArray holds any number of providers, which may be
	// inserted and removed.
	ProviderVariableArray
)

func (s ProviderShape) String() string {
	switch s {
	case ProviderSingle:
		return `single`
	case ProviderFixedArray:
		return `fixed`
	case ProviderVariableArray:
		return `variable`
	default:
		return `unknown`
	}
}

type (
	// ParameterDescriptor describes one automatable float parameter.
	ParameterDescriptor struct {
		Name    string
		Min     float32
		Max     float32
		Default float32
	}

	// ProviderSlotDescriptor describes one sample provider slot. Size is
	// only meaningful for ProviderFixedArray.
	ProviderSlotDescriptor struct {
		Name  string
		Shape ProviderShape
		Size  int
	}

	// Descriptor is the static description of a kernel type.
	Descriptor struct {
		Name       string
		Parameters []ParameterDescriptor
		Providers  []ProviderSlotDescriptor
	}

	// KernelType is a registered kernel: its descriptor tables and a
	// constructor for the concrete kernel.
	KernelType struct {
		typ       reflect.Type
		ptr       reflect.Type
		newKernel func() Kernel
		desc      Descriptor
		id        uint32
	}
)

var kernelRegistry struct {
	types  sync.Map // reflect.Type -> *KernelType
	nextID atomic.Uint32
}

// RegisterKernel registers K, and returns its KernelType. Registering the
// same type again with an equal descriptor returns the existing KernelType,
// so registration may safely run from package initialisation. A conflicting
// descriptor, or an invalid one, panics with a *FatalError.
func RegisterKernel[K any, P KernelPointer[K]](desc Descriptor) *KernelType {
	typ := reflect.TypeFor[K]()
	if err := desc.validate(); err != nil {
		fatalf(err, "kernel %s", typ)
	}
	if v, ok := kernelRegistry.types.Load(typ); ok {
		return v.(*KernelType).checkSame(desc)
	}
	kt := &KernelType{
		typ:       typ,
		ptr:       reflect.PointerTo(typ),
		newKernel: func() Kernel { return P(new(K)) },
		desc:      desc.clone(),
		id:        kernelRegistry.nextID.Add(1),
	}
	if v, loaded := kernelRegistry.types.LoadOrStore(typ, kt); loaded {
		return v.(*KernelType).checkSame(desc)
	}
	return kt
}

// LookupKernel returns the KernelType registered for K, if any.
func LookupKernel[K any]() (*KernelType, bool) {
	v, ok := kernelRegistry.types.Load(reflect.TypeFor[K]())
	if !ok {
		return nil, false
	}
	return v.(*KernelType), true
}

func (x *KernelType) checkSame(desc Descriptor) *KernelType {
	if !x.desc.equal(desc) {
		fatalf(nil, "kernel %s registered twice with different descriptors", x.typ)
	}
	return x
}

// ID is unique per registered type within the process.
func (x *KernelType) ID() uint32 {
	return x.id
}

// Name returns the descriptor name, or the Go type name if it is empty.
func (x *KernelType) Name() string {
	if x.desc.Name != `` {
		return x.desc.Name
	}
	return x.typ.String()
}

// Descriptor returns a copy of the registered descriptor.
func (x *KernelType) Descriptor() Descriptor {
	return x.desc.clone()
}

// Type returns the registered Go type, which is the pointee of the kernel.
func (x *KernelType) Type() reflect.Type {
	return x.typ
}

func (x *KernelType) String() string {
	return x.Name()
}

// checkKernel panics if k was not constructed for this type.
func (x *KernelType) checkKernel(k Kernel) {
	if reflect.TypeOf(k) != x.ptr {
		fatalf(ErrKernelMismatch, "node kernel is %T, registered %s", k, x.ptr)
	}
}

func (x Descriptor) validate() error {
	for i, p := range x.Parameters {
		if p.Min > p.Max || p.Default < p.Min || p.Default > p.Max {
			return fmt.Errorf("audiograph: parameter %d (%s): default %v outside [%v, %v]", i, p.Name, p.Default, p.Min, p.Max)
		}
	}
	for i, p := range x.Providers {
		switch p.Shape {
		case ProviderSingle, ProviderVariableArray:
		case ProviderFixedArray:
			if p.Size <= 0 {
				return fmt.Errorf("audiograph: provider slot %d (%s): fixed array size must be positive", i, p.Name)
			}
		default:
			return fmt.Errorf("audiograph: provider slot %d (%s): %w", i, p.Name, ErrProviderShape)
		}
	}
	return nil
}

func (x Descriptor) clone() Descriptor {
	x.Parameters = slices.Clone(x.Parameters)
	x.Providers = slices.Clone(x.Providers)
	return x
}

func (x Descriptor) equal(o Descriptor) bool {
	return x.Name == o.Name &&
		slices.Equal(x.Parameters, o.Parameters) &&
		slices.Equal(x.Providers, o.Providers)
}
