package model

// Block is a packed voxel value.
//
//	bits  0..15 kind (material id)
//	bits 16..19 block light
//	bits 20..23 sunlight
//	bit  24     solid
//	bit  25     transparent
//
// Light accessors never touch the kind or the flags.
type Block uint32

const (
	kindMask        Block = 0xFFFF
	blockLightShift       = 16
	sunlightShift         = 20
	lightMask       Block = 0xF
	flagSolid       Block = 1 << 24
	flagTransparent Block = 1 << 25
)

// MaxLight is the brightest level of either light channel.
const MaxLight uint8 = 15

// KindAir is palette id 0.
const KindAir uint16 = 0

// Air is the sentinel returned for every absent or unloaded position.
const Air = Block(flagTransparent)

func NewBlock(kind uint16, solid, transparent bool) Block {
	b := Block(kind)
	if solid {
		b |= flagSolid
	}
	if transparent {
		b |= flagTransparent
	}
	return b
}

func (b Block) Kind() uint16 { return uint16(b & kindMask) }

func (b Block) IsAir() bool { return b.Kind() == KindAir }

func (b Block) IsSolid() bool { return b&flagSolid != 0 }

func (b Block) IsTransparent() bool { return b&flagTransparent != 0 }

func (b Block) BlockLight() uint8 { return uint8((b >> blockLightShift) & lightMask) }

func (b Block) Sunlight() uint8 { return uint8((b >> sunlightShift) & lightMask) }

// Light returns the brighter of the two channels.
func (b Block) Light() uint8 {
	bl, sl := b.BlockLight(), b.Sunlight()
	if bl > sl {
		return bl
	}
	return sl
}

func (b Block) WithBlockLight(l uint8) Block {
	if l > MaxLight {
		l = MaxLight
	}
	return b&^(lightMask<<blockLightShift) | Block(l)<<blockLightShift
}

func (b Block) WithSunlight(l uint8) Block {
	if l > MaxLight {
		l = MaxLight
	}
	return b&^(lightMask<<sunlightShift) | Block(l)<<sunlightShift
}

// WithoutLight clears both light channels.
func (b Block) WithoutLight() Block {
	return b &^ (lightMask<<blockLightShift | lightMask<<sunlightShift)
}

// SameMaterial reports whether a and b differ only in their light fields.
func (b Block) SameMaterial(o Block) bool {
	return b.WithoutLight() == o.WithoutLight()
}
