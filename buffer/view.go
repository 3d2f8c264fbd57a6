// Package buffer provides View, a thin wrapper around a byte slice with the
// trim/clone convenience methods the segment package needs to hold one
// segment's payload without aliasing the network read buffer it arrived in.
package buffer

import "bytes"

// View is a slice of a buffer, with convenience methods.
type View []byte

// NewView allocates a new, zeroed view of the given size.
func NewView(size int) View {
	return make(View, size)
}

// NewViewFromBytes copies b into a freshly allocated View. Segment storage
// always clones incoming payloads this way, since the byte slice handed to
// ReadFrom on a UDP socket is reused across calls.
func NewViewFromBytes(b []byte) View {
	v := make(View, len(b))
	copy(v, b)
	return v
}

// TrimFront irreversibly removes the first count bytes from the visible
// section of the view.
func (v *View) TrimFront(count int) {
	*v = (*v)[count:]
}

// Equal reports whether v and other hold identical bytes.
func (v View) Equal(other View) bool {
	return bytes.Equal(v, other)
}
