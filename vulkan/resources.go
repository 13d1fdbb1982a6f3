package vulkan

import (
	"unsafe"

	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
)

type deviceMemory struct {
	device core1_0.Device
	native core1_0.DeviceMemory
}

func (b *Backend) AllocateMemory(memoryTypeIndex int, size int) (backend.Memory, error) {
	native, res, err := b.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return nil, classify(res, err, "allocating device memory")
	}
	return &deviceMemory{device: b.device, native: native}, nil
}

func (m *deviceMemory) Map(offset int, size int) (unsafe.Pointer, error) {
	ptr, res, err := m.native.Map(offset, size, 0)
	if err != nil {
		return nil, classify(res, err, "mapping device memory")
	}
	return ptr, nil
}

func (m *deviceMemory) Unmap() {
	m.native.Unmap()
}

func (m *deviceMemory) Flush(offset int, size int) error {
	res, err := m.device.FlushMappedMemoryRanges([]core1_0.MappedMemoryRange{
		{Memory: m.native, Offset: offset, Size: size},
	})
	return classify(res, err, "flushing mapped memory")
}

func (m *deviceMemory) Invalidate(offset int, size int) error {
	res, err := m.device.InvalidateMappedMemoryRanges([]core1_0.MappedMemoryRange{
		{Memory: m.native, Offset: offset, Size: size},
	})
	return classify(res, err, "invalidating mapped memory")
}

func (m *deviceMemory) Free() {
	m.native.Free(nil)
}

func nativeMemory(memory backend.Memory) core1_0.DeviceMemory {
	vkMemory, ok := memory.(*deviceMemory)
	if !ok {
		gpuerr.Precondition("memory %T was not allocated by the vulkan backend", memory)
	}
	return vkMemory.native
}

type buffer struct {
	native core1_0.Buffer
}

func (b *Backend) CreateBuffer(info backend.BufferInfo) (backend.Buffer, error) {
	native, res, err := b.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        info.Size,
		Usage:       info.Usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, classify(res, err, "creating buffer")
	}
	return &buffer{native: native}, nil
}

func (b *buffer) MemoryRequirements() core1_0.MemoryRequirements {
	return *b.native.MemoryRequirements()
}

func (b *buffer) BindMemory(memory backend.Memory, offset int) error {
	res, err := b.native.BindBufferMemory(nativeMemory(memory), offset)
	return classify(res, err, "binding buffer memory")
}

func (b *buffer) Destroy() {
	b.native.Destroy(nil)
}

func nativeBuffer(buf backend.Buffer) core1_0.Buffer {
	vkBuffer, ok := buf.(*buffer)
	if !ok {
		gpuerr.Precondition("buffer %T was not created by the vulkan backend", buf)
	}
	return vkBuffer.native
}

type image struct {
	native core1_0.Image
	// swapchain images are owned by the swapchain
	presentable bool
}

func (b *Backend) CreateImage(info backend.ImageInfo) (backend.Image, error) {
	native, res, err := b.device.CreateImage(nil, core1_0.ImageCreateInfo{
		Flags:         info.Flags,
		ImageType:     info.Type,
		Format:        info.Format,
		Extent:        info.Extent,
		MipLevels:     info.MipLevels,
		ArrayLayers:   info.ArrayLayers,
		Samples:       info.Samples,
		Tiling:        core1_0.ImageTilingOptimal,
		Usage:         info.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		InitialLayout: core1_0.ImageLayoutUndefined,
	})
	if err != nil {
		return nil, classify(res, err, "creating image")
	}
	return &image{native: native}, nil
}

// WrapSwapchainImage adapts an image owned by a swapchain so it can be handed to
// resource.Factory.WrapPresentable. Destroying the result does not destroy the image.
func WrapSwapchainImage(native core1_0.Image) backend.Image {
	return &image{native: native, presentable: true}
}

func (i *image) MemoryRequirements() core1_0.MemoryRequirements {
	return *i.native.MemoryRequirements()
}

func (i *image) BindMemory(memory backend.Memory, offset int) error {
	if i.presentable {
		gpuerr.Precondition("swapchain images cannot be bound to memory")
	}
	res, err := i.native.BindImageMemory(nativeMemory(memory), offset)
	return classify(res, err, "binding image memory")
}

func (i *image) Destroy() {
	if !i.presentable {
		i.native.Destroy(nil)
	}
}

func nativeImage(img backend.Image) core1_0.Image {
	vkImage, ok := img.(*image)
	if !ok {
		gpuerr.Precondition("image %T was not created by the vulkan backend", img)
	}
	return vkImage.native
}

type imageView struct {
	native core1_0.ImageView
}

func (b *Backend) CreateImageView(img backend.Image, info backend.ImageViewInfo) (backend.ImageView, error) {
	native, res, err := b.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:            nativeImage(img),
		ViewType:         info.Type,
		Format:           info.Format,
		SubresourceRange: info.Range,
	})
	if err != nil {
		return nil, classify(res, err, "creating image view")
	}
	return &imageView{native: native}, nil
}

func (v *imageView) Destroy() {
	v.native.Destroy(nil)
}

type renderPass struct {
	native core1_0.RenderPass
}

// attachmentReference converts a ref. backend.AttachmentUnused is core1_0.AttachmentUnused.
func attachmentReference(ref backend.AttachmentRef) core1_0.AttachmentReference {
	return core1_0.AttachmentReference{
		Attachment: ref.Attachment,
		Layout:     ref.Layout,
	}
}

func (b *Backend) CreateRenderPass(info backend.RenderPassInfo) (backend.RenderPass, error) {
	subpass := core1_0.SubpassDescription{
		PipelineBindPoint: core1_0.PipelineBindPointGraphics,
	}
	for _, ref := range info.Color {
		subpass.ColorAttachments = append(subpass.ColorAttachments, attachmentReference(ref))
	}
	for _, ref := range info.Resolve {
		subpass.ResolveAttachments = append(subpass.ResolveAttachments, attachmentReference(ref))
	}
	if info.DepthStencil != nil {
		depth := attachmentReference(*info.DepthStencil)
		subpass.DepthStencilAttachment = &depth
	}

	native, res, err := b.device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: info.Attachments,
		Subpasses:   []core1_0.SubpassDescription{subpass},
	})
	if err != nil {
		return nil, classify(res, err, "creating render pass")
	}
	return &renderPass{native: native}, nil
}

func (p *renderPass) Destroy() {
	p.native.Destroy(nil)
}

type framebuffer struct {
	native core1_0.Framebuffer
}

func (b *Backend) CreateFramebuffer(info backend.FramebufferInfo) (backend.Framebuffer, error) {
	vkPass, ok := info.RenderPass.(*renderPass)
	if !ok {
		gpuerr.Precondition("render pass %T was not created by the vulkan backend", info.RenderPass)
	}

	views := make([]core1_0.ImageView, 0, len(info.Views))
	for _, view := range info.Views {
		vkView, ok := view.(*imageView)
		if !ok {
			gpuerr.Precondition("image view %T was not created by the vulkan backend", view)
		}
		views = append(views, vkView.native)
	}

	native, res, err := b.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  vkPass.native,
		Attachments: views,
		Width:       info.Width,
		Height:      info.Height,
		Layers:      uint32(info.Layers),
	})
	if err != nil {
		return nil, classify(res, err, "creating framebuffer")
	}
	return &framebuffer{native: native}, nil
}

func (f *framebuffer) Destroy() {
	f.native.Destroy(nil)
}
