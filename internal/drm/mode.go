package drm

import (
	"bytes"
	"fmt"
	"unsafe"

	"github.com/BeatGlow/surface/internal/ioctl"
)

// Connection states reported by the kernel for a connector.
const (
	Connected         = 1
	Disconnected      = 2
	UnknownConnection = 3
)

// Plane type property values, from <drm/drm_mode.h>.
const (
	PlaneTypeOverlay = 0
	PlaneTypePrimary = 1
	PlaneTypeCursor  = 2
)

const modeNameLen = 32

// Wire structures from <drm/drm_mode.h>. Count/pointer pairs follow the
// kernel convention: call once to learn the counts, allocate, call again to
// fill the arrays.
type (
	modeRes struct {
		fbIDPtr              uint64
		crtcIDPtr            uint64
		connectorIDPtr       uint64
		encoderIDPtr         uint64
		countFBs             uint32
		countCRTCs           uint32
		countConnectors      uint32
		countEncoders        uint32
		minWidth, maxWidth   uint32
		minHeight, maxHeight uint32
	}

	modeGetConnector struct {
		encodersPtr   uint64
		modesPtr      uint64
		propsPtr      uint64
		propValuesPtr uint64

		countModes    uint32
		countProps    uint32
		countEncoders uint32

		encoderID uint32
		id        uint32
		typ       uint32
		typeID    uint32

		connection         uint32
		mmWidth, mmHeight  uint32
		subpixel           uint32
		pad                uint32
	}

	modeGetEncoder struct {
		id             uint32
		typ            uint32
		crtcID         uint32
		possibleCRTCs  uint32
		possibleClones uint32
	}

	modeCRTC struct {
		setConnectorsPtr uint64
		countConnectors  uint32

		id   uint32
		fbID uint32

		x, y uint32

		gammaSize uint32
		modeValid uint32
		mode      Mode
	}

	modeGetPlaneRes struct {
		planeIDPtr  uint64
		countPlanes uint32
	}

	modeGetPlane struct {
		planeID       uint32
		crtcID        uint32
		fbID          uint32
		possibleCRTCs uint32
		gammaSize     uint32
		countFormats  uint32
		formatTypePtr uint64
	}

	modeGetProperty struct {
		valuesPtr      uint64
		enumBlobPtr    uint64
		propID         uint32
		flags          uint32
		name           [32]byte
		countValues    uint32
		countEnumBlobs uint32
	}

	modeObjGetProperties struct {
		propsPtr      uint64
		propValuesPtr uint64
		countProps    uint32
		objID         uint32
		objType       uint32
	}
)

// Mode is a display timing configuration (struct drm_mode_modeinfo).
type Mode struct {
	Clock                                         uint32
	Hdisplay, HsyncStart, HsyncEnd, Htotal, Hskew uint16
	Vdisplay, VsyncStart, VsyncEnd, Vtotal, Vscan uint16

	Vrefresh uint32

	Flags uint32
	Type  uint32
	Name  [modeNameLen]byte
}

// Size returns the visible width and height in pixels.
func (m *Mode) Size() (uint32, uint32) {
	return uint32(m.Hdisplay), uint32(m.Vdisplay)
}

func (m *Mode) String() string {
	name, _, _ := bytes.Cut(m.Name[:], []byte{0})
	return string(name)
}

// Resources holds the card's mode-setting resource handles.
type Resources struct {
	FBs        []uint32
	CRTCs      []uint32
	Connectors []uint32
	Encoders   []uint32

	MinWidth, MaxWidth   uint32
	MinHeight, MaxHeight uint32
}

// FilterCRTCs returns the CRTC handles selected by a possible-CRTC bitmask.
// Bit i of the mask refers to the i-th CRTC in enumeration order.
func (r *Resources) FilterCRTCs(mask uint32) []uint32 {
	var crtcs []uint32
	for i, id := range r.CRTCs {
		if i < 32 && mask&(1<<uint(i)) != 0 {
			crtcs = append(crtcs, id)
		}
	}
	return crtcs
}

// Connector is a physical video output port.
type Connector struct {
	ID         uint32
	EncoderID  uint32
	Type       uint32
	TypeID     uint32
	Connection uint32

	// Physical dimensions in millimeters.
	WidthMM, HeightMM uint32

	Modes    []Mode
	Encoders []uint32

	Props      []uint32
	PropValues []uint64
}

// Connected reports whether a display is attached to the connector.
func (c *Connector) Connected() bool {
	return c.Connection == Connected
}

// Encoder converts pixel data between a CRTC and a connector.
type Encoder struct {
	ID            uint32
	Type          uint32
	CRTCID        uint32
	PossibleCRTCs uint32
}

// CRTC is the hardware unit that scans a framebuffer out to a connector.
type CRTC struct {
	ID        uint32
	FBID      uint32
	X, Y      uint32
	GammaSize uint32
	ModeValid bool
	Mode      Mode
}

// Plane is a hardware scan-out layer that can be bound to a CRTC.
type Plane struct {
	ID            uint32
	CRTCID        uint32
	FBID          uint32
	PossibleCRTCs uint32
	Formats       []uint32
}

// Property describes a mode object property.
type Property struct {
	ID    uint32
	Flags uint32
	Name  string
}

// Properties is the property/value list attached to a mode object.
type Properties struct {
	ObjectID uint32
	IDs      []uint32
	Values   []uint64
}

var (
	// DRM_IOWR(0xA0, struct drm_mode_card_res)
	ioctlModeResources = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(modeRes{})), ioctlBase, 0xA0)

	// DRM_IOWR(0xA1, struct drm_mode_crtc)
	ioctlModeGetCRTC = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(modeCRTC{})), ioctlBase, 0xA1)

	// DRM_IOWR(0xA2, struct drm_mode_crtc)
	ioctlModeSetCRTC = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(modeCRTC{})), ioctlBase, 0xA2)

	// DRM_IOWR(0xA6, struct drm_mode_get_encoder)
	ioctlModeGetEncoder = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(modeGetEncoder{})), ioctlBase, 0xA6)

	// DRM_IOWR(0xA7, struct drm_mode_get_connector)
	ioctlModeGetConnector = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(modeGetConnector{})), ioctlBase, 0xA7)

	// DRM_IOWR(0xAA, struct drm_mode_get_property)
	ioctlModeGetProperty = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(modeGetProperty{})), ioctlBase, 0xAA)

	// DRM_IOWR(0xB5, struct drm_mode_get_plane_res)
	ioctlModeGetPlaneResources = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(modeGetPlaneRes{})), ioctlBase, 0xB5)

	// DRM_IOWR(0xB6, struct drm_mode_get_plane)
	ioctlModeGetPlane = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(modeGetPlane{})), ioctlBase, 0xB6)

	// DRM_IOWR(0xB9, struct drm_mode_obj_get_properties)
	ioctlModeObjGetProperties = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(modeObjGetProperties{})), ioctlBase, 0xB9)
)

// Resources queries the card's mode-setting resources. The result is always
// queried fresh, the kernel may add or remove resources on hotplug.
func (c *Card) Resources() (*Resources, error) {
	var arg modeRes
	if err := ioctl.Do(c.fd, ioctlModeResources, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}

	res := &Resources{
		MinWidth:  arg.minWidth,
		MaxWidth:  arg.maxWidth,
		MinHeight: arg.minHeight,
		MaxHeight: arg.maxHeight,
	}

	if arg.countFBs > 0 {
		res.FBs = make([]uint32, arg.countFBs)
		arg.fbIDPtr = uint64(uintptr(unsafe.Pointer(&res.FBs[0])))
	}
	if arg.countCRTCs > 0 {
		res.CRTCs = make([]uint32, arg.countCRTCs)
		arg.crtcIDPtr = uint64(uintptr(unsafe.Pointer(&res.CRTCs[0])))
	}
	if arg.countConnectors > 0 {
		res.Connectors = make([]uint32, arg.countConnectors)
		arg.connectorIDPtr = uint64(uintptr(unsafe.Pointer(&res.Connectors[0])))
	}
	if arg.countEncoders > 0 {
		res.Encoders = make([]uint32, arg.countEncoders)
		arg.encoderIDPtr = uint64(uintptr(unsafe.Pointer(&res.Encoders[0])))
	}

	if err := ioctl.Do(c.fd, ioctlModeResources, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}
	return res, nil
}

// Connector queries a connector by handle, probing its current state.
func (c *Card) Connector(id uint32) (*Connector, error) {
	arg := modeGetConnector{id: id}
	if err := ioctl.Do(c.fd, ioctlModeGetConnector, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}

	conn := &Connector{ID: id}

	if arg.countProps > 0 {
		conn.Props = make([]uint32, arg.countProps)
		arg.propsPtr = uint64(uintptr(unsafe.Pointer(&conn.Props[0])))
		conn.PropValues = make([]uint64, arg.countProps)
		arg.propValuesPtr = uint64(uintptr(unsafe.Pointer(&conn.PropValues[0])))
	}
	if arg.countModes == 0 {
		// Always fetch at least one mode, this forces the kernel to probe.
		arg.countModes = 1
	}
	conn.Modes = make([]Mode, arg.countModes)
	arg.modesPtr = uint64(uintptr(unsafe.Pointer(&conn.Modes[0])))
	if arg.countEncoders > 0 {
		conn.Encoders = make([]uint32, arg.countEncoders)
		arg.encodersPtr = uint64(uintptr(unsafe.Pointer(&conn.Encoders[0])))
	}

	if err := ioctl.Do(c.fd, ioctlModeGetConnector, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}

	conn.EncoderID = arg.encoderID
	conn.Type = arg.typ
	conn.TypeID = arg.typeID
	conn.Connection = arg.connection
	conn.WidthMM = arg.mmWidth
	conn.HeightMM = arg.mmHeight
	conn.Modes = shrink(conn.Modes, arg.countModes)
	conn.Encoders = shrink(conn.Encoders, arg.countEncoders)
	conn.Props = shrink(conn.Props, arg.countProps)
	conn.PropValues = shrink(conn.PropValues, arg.countProps)

	return conn, nil
}

// shrink reslices a kernel-filled array to the count reported by the
// second ioctl call. A hotplug between the two calls can change the
// count in either direction; the kernel fills at most the allocated
// length, so a grown count must not grow the slice.
func shrink[T any](s []T, count uint32) []T {
	if n := int(count); n < len(s) {
		return s[:n]
	}
	return s
}

// Encoder queries an encoder by handle.
func (c *Card) Encoder(id uint32) (*Encoder, error) {
	arg := modeGetEncoder{id: id}
	if err := ioctl.Do(c.fd, ioctlModeGetEncoder, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}

	return &Encoder{
		ID:            arg.id,
		Type:          arg.typ,
		CRTCID:        arg.crtcID,
		PossibleCRTCs: arg.possibleCRTCs,
	}, nil
}

// CRTC queries a CRTC by handle.
func (c *Card) CRTC(id uint32) (*CRTC, error) {
	arg := modeCRTC{id: id}
	if err := ioctl.Do(c.fd, ioctlModeGetCRTC, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}

	return &CRTC{
		ID:        arg.id,
		FBID:      arg.fbID,
		X:         arg.x,
		Y:         arg.y,
		GammaSize: arg.gammaSize,
		ModeValid: arg.modeValid != 0,
		Mode:      arg.mode,
	}, nil
}

// Planes enumerates the card's plane handles. Primary and cursor planes are
// only visible after SetClientCap(ClientCapUniversalPlanes, 1).
func (c *Card) Planes() ([]uint32, error) {
	var arg modeGetPlaneRes
	if err := ioctl.Do(c.fd, ioctlModeGetPlaneResources, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}

	var planes []uint32
	if arg.countPlanes > 0 {
		planes = make([]uint32, arg.countPlanes)
		arg.planeIDPtr = uint64(uintptr(unsafe.Pointer(&planes[0])))
	}

	if err := ioctl.Do(c.fd, ioctlModeGetPlaneResources, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}
	return planes, nil
}

// Plane queries a plane by handle.
func (c *Card) Plane(id uint32) (*Plane, error) {
	arg := modeGetPlane{planeID: id}
	if err := ioctl.Do(c.fd, ioctlModeGetPlane, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}

	plane := &Plane{ID: id}
	if arg.countFormats > 0 {
		plane.Formats = make([]uint32, arg.countFormats)
		arg.formatTypePtr = uint64(uintptr(unsafe.Pointer(&plane.Formats[0])))
	}

	if err := ioctl.Do(c.fd, ioctlModeGetPlane, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}

	plane.CRTCID = arg.crtcID
	plane.FBID = arg.fbID
	plane.PossibleCRTCs = arg.possibleCRTCs

	return plane, nil
}

// planeSource is the slice of the card interface the primary-plane
// selection walks. *Card implements it; tests use a fake topology.
type planeSource interface {
	Planes() ([]uint32, error)
	Plane(id uint32) (*Plane, error)
	Property(id uint32) (*Property, error)
	ObjectProperties(objID, objType uint32) (*Properties, error)
}

// PrimaryPlane selects the plane to target for the given CRTC: planes are
// filtered to those whose possible-CRTC mask includes the CRTC, preferring
// the one whose "type" property is primary, falling back to the first
// compatible plane. Requires ClientCapUniversalPlanes to see primary
// planes at all.
func (c *Card) PrimaryPlane(res *Resources, crtcID uint32) (uint32, error) {
	return primaryPlane(c, res, crtcID)
}

func primaryPlane(dev planeSource, res *Resources, crtcID uint32) (uint32, error) {
	ids, err := dev.Planes()
	if err != nil {
		return 0, err
	}

	var compatible []uint32
	for _, id := range ids {
		plane, err := dev.Plane(id)
		if err != nil {
			continue
		}
		for _, crtc := range res.FilterCRTCs(plane.PossibleCRTCs) {
			if crtc == crtcID {
				compatible = append(compatible, id)
				break
			}
		}
	}
	if len(compatible) == 0 {
		return 0, fmt.Errorf("drm: no plane compatible with CRTC %d", crtcID)
	}

	for _, id := range compatible {
		props, err := dev.ObjectProperties(id, ObjectPlane)
		if err != nil {
			continue
		}
		for i, propID := range props.IDs {
			prop, err := dev.Property(propID)
			if err != nil {
				continue
			}
			if prop.Name == "type" && props.Values[i] == PlaneTypePrimary {
				return id, nil
			}
		}
	}

	// No plane advertises a type, take the first compatible one.
	return compatible[0], nil
}

// Property queries a property definition by handle.
func (c *Card) Property(id uint32) (*Property, error) {
	arg := modeGetProperty{propID: id}
	if err := ioctl.Do(c.fd, ioctlModeGetProperty, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}

	name, _, _ := bytes.Cut(arg.name[:], []byte{0})
	return &Property{
		ID:    arg.propID,
		Flags: arg.flags,
		Name:  string(name),
	}, nil
}

// ObjectProperties queries the properties attached to a mode object.
func (c *Card) ObjectProperties(objID, objType uint32) (*Properties, error) {
	arg := modeObjGetProperties{objID: objID, objType: objType}
	if err := ioctl.Do(c.fd, ioctlModeObjGetProperties, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}

	props := &Properties{ObjectID: objID}
	if arg.countProps > 0 {
		props.IDs = make([]uint32, arg.countProps)
		arg.propsPtr = uint64(uintptr(unsafe.Pointer(&props.IDs[0])))
		props.Values = make([]uint64, arg.countProps)
		arg.propValuesPtr = uint64(uintptr(unsafe.Pointer(&props.Values[0])))
	}

	if err := ioctl.Do(c.fd, ioctlModeObjGetProperties, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}
	return props, nil
}

// ObjectPlane is the object type of plane handles in property queries.
const ObjectPlane = 0xeeeeeeee

// SetCRTC binds a framebuffer, connector set and mode to a CRTC. A nil mode
// with fb 0 disables the CRTC.
func (c *Card) SetCRTC(crtcID, fbID, x, y uint32, connectors []uint32, mode *Mode) error {
	arg := modeCRTC{
		id:   crtcID,
		fbID: fbID,
		x:    x,
		y:    y,
	}
	if len(connectors) > 0 {
		arg.setConnectorsPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
		arg.countConnectors = uint32(len(connectors))
	}
	if mode != nil {
		arg.mode = *mode
		arg.modeValid = 1
	}
	return ioctl.Do(c.fd, ioctlModeSetCRTC, unsafe.Pointer(&arg))
}
