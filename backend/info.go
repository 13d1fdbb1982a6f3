package backend

import "github.com/vkngwrapper/core/v2/core1_0"

// AttachmentUnused marks an AttachmentRef that does not point at any attachment
const AttachmentUnused = int(core1_0.AttachmentUnused)

// BufferInfo describes a buffer to create. Memory is bound separately.
type BufferInfo struct {
	Size  int
	Usage core1_0.BufferUsageFlags
}

// ImageInfo describes an optimally tiled image to create
type ImageInfo struct {
	Type        core1_0.ImageType
	Format      core1_0.Format
	Extent      core1_0.Extent3D
	MipLevels   int
	ArrayLayers int
	Samples     core1_0.SampleCountFlags
	Usage       core1_0.ImageUsageFlags
	Flags       core1_0.ImageCreateFlags
}

// ImageViewInfo describes a view over a subresource range of an image
type ImageViewInfo struct {
	Type   core1_0.ImageViewType
	Format core1_0.Format
	Range  core1_0.ImageSubresourceRange
}

// AttachmentRef points a subpass slot at an index of RenderPassInfo.Attachments
type AttachmentRef struct {
	Attachment int
	Layout     core1_0.ImageLayout
}

// RenderPassInfo describes a single-subpass render pass. Resolve is either empty or
// the same length as Color, with AttachmentUnused for color attachments that do not
// resolve.
type RenderPassInfo struct {
	Attachments  []core1_0.AttachmentDescription
	Color        []AttachmentRef
	Resolve      []AttachmentRef
	DepthStencil *AttachmentRef
}

// FramebufferInfo binds views to the attachment slots of a render pass
type FramebufferInfo struct {
	RenderPass RenderPass
	Views      []ImageView
	Width      int
	Height     int
	Layers     int
}
