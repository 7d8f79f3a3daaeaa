// Package ids defines the core identifier types shared by every layer of
// the pipeline: per-stream offsets, stream identifiers, and the tenant
// identifiers they encode.
package ids

import "fmt"

// Offset is a monotonically increasing 64-bit stream position. ZeroOffset
// is the first valid value for a fresh stream.
type Offset uint64

// ZeroOffset is the offset of the first record ever appended to a stream.
const ZeroOffset Offset = 0

// Add returns the offset n positions after o.
func (o Offset) Add(n uint64) Offset {
	return o + Offset(n)
}

// TenantId scopes ownership, isolation, and access. It occupies the top
// 32 bits of every StreamId.
type TenantId uint32

// StreamId is a 64-bit identifier whose top 32 bits are a TenantId and
// whose low 32 bits are a per-tenant local stream number.
type StreamId uint64

// NewStreamId packs a tenant and a local stream number into a StreamId.
func NewStreamId(tenant TenantId, local uint32) StreamId {
	return StreamId(uint64(tenant)<<32 | uint64(local))
}

// Tenant recovers the TenantId that owns s.
func (s StreamId) Tenant() TenantId {
	return TenantId(uint64(s) >> 32)
}

// Local returns the tenant-local stream number encoded in s.
func (s StreamId) Local() uint32 {
	return uint32(s)
}

func (s StreamId) String() string {
	return fmt.Sprintf("stream(tenant=%d,local=%d)", s.Tenant(), s.Local())
}

// TableId identifies a table within the kernel's metadata catalog.
type TableId uint64

// IndexId identifies a secondary index within the kernel's metadata catalog.
type IndexId uint64
