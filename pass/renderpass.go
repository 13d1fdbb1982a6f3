// Package pass builds single-subpass render passes and the framebuffers that bind
// texture views to them.
package pass

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/access"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
)

// MaxColorAttachments is the most color attachments a render pass may have
const MaxColorAttachments = 8

// LoadOp is what happens to an attachment's contents when the pass begins
type LoadOp int

const (
	LoadNone LoadOp = iota
	LoadClear
	LoadLoad
)

var loadOpNames = map[LoadOp]string{
	LoadNone:  "None",
	LoadClear: "Clear",
	LoadLoad:  "Load",
}

func (o LoadOp) String() string {
	return loadOpNames[o]
}

func (o LoadOp) native() core1_0.AttachmentLoadOp {
	switch o {
	case LoadClear:
		return core1_0.AttachmentLoadOpClear
	case LoadLoad:
		return core1_0.AttachmentLoadOpLoad
	}
	return core1_0.AttachmentLoadOpDontCare
}

// StoreOp is what happens to an attachment's contents when the pass ends
type StoreOp int

const (
	StoreDiscard StoreOp = iota
	StoreStore
	// StoreResolve resolves the multisampled attachment and discards it
	StoreResolve
	// StoreAndResolve resolves the multisampled attachment and keeps it
	StoreAndResolve
)

var storeOpNames = map[StoreOp]string{
	StoreDiscard:    "Discard",
	StoreStore:      "Store",
	StoreResolve:    "Resolve",
	StoreAndResolve: "StoreAndResolve",
}

func (o StoreOp) String() string {
	return storeOpNames[o]
}

func (o StoreOp) resolves() bool {
	return o == StoreResolve || o == StoreAndResolve
}

func (o StoreOp) native() core1_0.AttachmentStoreOp {
	if o == StoreStore || o == StoreAndResolve {
		return core1_0.AttachmentStoreOpStore
	}
	return core1_0.AttachmentStoreOpDontCare
}

// ColorAttachment describes one color slot of a render pass
type ColorAttachment struct {
	Format  core1_0.Format
	Samples int
	Load    LoadOp
	Store   StoreOp
}

// DepthStencilAttachment carries separate operations for the depth and stencil
// channels. Depth and stencil cannot be resolved.
type DepthStencilAttachment struct {
	Format       core1_0.Format
	Samples      int
	DepthLoad    LoadOp
	DepthStore   StoreOp
	StencilLoad  LoadOp
	StencilStore StoreOp
}

// SlotKind says what a framebuffer slot holds
type SlotKind int

const (
	SlotColor SlotKind = iota
	SlotResolve
	SlotDepthStencil
)

// Slot is one attachment of a render pass, in framebuffer order
type Slot struct {
	Kind SlotKind
	// Source is the color index of a color slot or the color a resolve slot resolves.
	// It is -1 for depth/stencil.
	Source  int
	Format  core1_0.Format
	Samples core1_0.SampleCountFlags
}

// RenderPass is an immutable description of a pass's attachments. Slots are ordered
// colors first, then one resolve target per resolving color, then depth/stencil.
type RenderPass struct {
	native  backend.RenderPass
	colors  []ColorAttachment
	depth   *DepthStencilAttachment
	slots   []Slot
	resolve []int
}

// Builder creates render passes and framebuffers
type Builder struct {
	logger  *slog.Logger
	backend backend.Backend
}

// NewBuilder creates a Builder for render passes and framebuffers over b
func NewBuilder(logger *slog.Logger, b backend.Backend) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger, backend: b}
}

func checkSamples(samples int) {
	if samples < 1 || samples > 64 || samples&(samples-1) != 0 {
		gpuerr.Precondition("sample count %d must be a power of two no larger than 64", samples)
	}
}

// CreateRenderPass creates a pass writing colors and, when depth is not nil, a
// depth/stencil attachment. Zero sample counts mean 1.
//
// When the backend cannot give depth and stencil separate operations, both channels
// use the stronger of the two requested operations: Load over Clear over None, and
// Store over Discard.
func (b *Builder) CreateRenderPass(colors []ColorAttachment, depth *DepthStencilAttachment) (*RenderPass, error) {
	if len(colors) == 0 && depth == nil {
		gpuerr.Precondition("a render pass needs at least one attachment")
	}
	if len(colors) > MaxColorAttachments {
		gpuerr.Precondition("a render pass may have at most %d color attachments, got %d", MaxColorAttachments, len(colors))
	}

	pass := &RenderPass{
		colors:  make([]ColorAttachment, len(colors)),
		resolve: make([]int, len(colors)),
	}

	info := backend.RenderPassInfo{}

	for i, color := range colors {
		if color.Samples == 0 {
			color.Samples = 1
		}
		checkSamples(color.Samples)
		if access.IsDepthFormat(color.Format) {
			gpuerr.Precondition("color attachment %d has depth format %v", i, color.Format)
		}
		if color.Store.resolves() && color.Samples == 1 {
			gpuerr.Precondition("color attachment %d resolves, but is not multisampled", i)
		}

		pass.colors[i] = color
		pass.resolve[i] = backend.AttachmentUnused
		pass.slots = append(pass.slots, Slot{
			Kind:    SlotColor,
			Source:  i,
			Format:  color.Format,
			Samples: core1_0.SampleCountFlags(color.Samples),
		})

		initialLayout := core1_0.ImageLayoutUndefined
		if color.Load == LoadLoad {
			initialLayout = core1_0.ImageLayoutColorAttachmentOptimal
		}
		info.Attachments = append(info.Attachments, core1_0.AttachmentDescription{
			Format:         color.Format,
			Samples:        core1_0.SampleCountFlags(color.Samples),
			LoadOp:         color.Load.native(),
			StoreOp:        color.Store.native(),
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  initialLayout,
			FinalLayout:    core1_0.ImageLayoutColorAttachmentOptimal,
		})
		info.Color = append(info.Color, backend.AttachmentRef{
			Attachment: i,
			Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
		})
	}

	for i, color := range pass.colors {
		if !color.Store.resolves() {
			continue
		}

		slot := len(pass.slots)
		pass.resolve[i] = slot
		pass.slots = append(pass.slots, Slot{
			Kind:    SlotResolve,
			Source:  i,
			Format:  color.Format,
			Samples: core1_0.Samples1,
		})
		info.Attachments = append(info.Attachments, core1_0.AttachmentDescription{
			Format:         color.Format,
			Samples:        core1_0.Samples1,
			LoadOp:         core1_0.AttachmentLoadOpDontCare,
			StoreOp:        core1_0.AttachmentStoreOpStore,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    core1_0.ImageLayoutColorAttachmentOptimal,
		})
	}

	if len(info.Attachments) > len(colors) {
		for i := range pass.colors {
			info.Resolve = append(info.Resolve, backend.AttachmentRef{
				Attachment: pass.resolve[i],
				Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
			})
		}
	}

	if depth != nil {
		ds := *depth
		if ds.Samples == 0 {
			ds.Samples = 1
		}
		checkSamples(ds.Samples)
		if !access.IsDepthFormat(ds.Format) {
			gpuerr.Precondition("depth/stencil attachment has color format %v", ds.Format)
		}
		if ds.DepthStore.resolves() || ds.StencilStore.resolves() {
			gpuerr.Precondition("depth/stencil attachments cannot be resolved")
		}

		if b.backend.Capabilities().CombinedDepthStencilOps {
			ds.DepthLoad = max(ds.DepthLoad, ds.StencilLoad)
			ds.StencilLoad = ds.DepthLoad
			ds.DepthStore = max(ds.DepthStore, ds.StencilStore)
			ds.StencilStore = ds.DepthStore
		}
		pass.depth = &ds

		initialLayout := core1_0.ImageLayoutUndefined
		if ds.DepthLoad == LoadLoad || ds.StencilLoad == LoadLoad {
			initialLayout = core1_0.ImageLayoutDepthStencilAttachmentOptimal
		}

		slot := len(pass.slots)
		pass.slots = append(pass.slots, Slot{
			Kind:    SlotDepthStencil,
			Source:  -1,
			Format:  ds.Format,
			Samples: core1_0.SampleCountFlags(ds.Samples),
		})
		info.Attachments = append(info.Attachments, core1_0.AttachmentDescription{
			Format:         ds.Format,
			Samples:        core1_0.SampleCountFlags(ds.Samples),
			LoadOp:         ds.DepthLoad.native(),
			StoreOp:        ds.DepthStore.native(),
			StencilLoadOp:  ds.StencilLoad.native(),
			StencilStoreOp: ds.StencilStore.native(),
			InitialLayout:  initialLayout,
			FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		})
		info.DepthStencil = &backend.AttachmentRef{
			Attachment: slot,
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	native, err := b.backend.CreateRenderPass(info)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create render pass")
	}
	pass.native = native

	b.logger.Debug("Builder::CreateRenderPass",
		slog.Int("Colors", len(colors)),
		slog.Int("Slots", len(pass.slots)),
		slog.Bool("DepthStencil", depth != nil),
	)

	return pass, nil
}

func (p *RenderPass) Native() backend.RenderPass { return p.native }

// Slots returns the pass's attachments in framebuffer order
func (p *RenderPass) Slots() []Slot {
	return append([]Slot(nil), p.slots...)
}

func (p *RenderPass) ColorCount() int { return len(p.colors) }

func (p *RenderPass) Color(index int) ColorAttachment { return p.colors[index] }

// ResolveSlot returns the slot a color attachment resolves into, or
// backend.AttachmentUnused
func (p *RenderPass) ResolveSlot(color int) int { return p.resolve[color] }

// DepthStencil returns the depth/stencil attachment with its effective operations, or nil
func (p *RenderPass) DepthStencil() *DepthStencilAttachment {
	if p.depth == nil {
		return nil
	}
	ds := *p.depth
	return &ds
}

// Clear holds the clear values for attachments that load with LoadClear
type Clear struct {
	Colors  [][4]float32
	Depth   float32
	Stencil uint32
}

// ClearValues lays clear out in slot order. Slots that do not clear get a zero value.
func (p *RenderPass) ClearValues(clear Clear) []core1_0.ClearValue {
	values := make([]core1_0.ClearValue, len(p.slots))
	for i, slot := range p.slots {
		switch slot.Kind {
		case SlotColor:
			var color [4]float32
			if slot.Source < len(clear.Colors) {
				color = clear.Colors[slot.Source]
			} else if p.colors[slot.Source].Load == LoadClear {
				gpuerr.Precondition("color attachment %d clears, but no clear color was given", slot.Source)
			}
			values[i] = core1_0.ClearValueFloat(color)
		case SlotResolve:
			values[i] = core1_0.ClearValueFloat{}
		case SlotDepthStencil:
			values[i] = core1_0.ClearValueDepthStencil{Depth: clear.Depth, Stencil: clear.Stencil}
		}
	}
	return values
}

func (p *RenderPass) Destroy() {
	p.native.Destroy()
}
