package badger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/marmos91/layerfs/pkg/metadata"
)

// ============================================================================
// Database Key Namespace Design
// ============================================================================
//
// BadgerDB is a key-value store, so we use prefixed keys to organize different
// record types into logical namespaces. Every key after the tenant marker
// starts with the tenant ID, so a tenant's records can never be addressed from
// another tenant's transaction. Tenant IDs never contain ':' and layer/inode
// IDs are UUIDs, so only the trailing name component can contain separators.
//
// Data Type        Prefix  Key Format                               Value Type
// ==============================================================================
// Tenant           "t:"    t:<tenant>                               Tenant (JSON)
// Layer            "l:"    l:<tenant>:<layerID>                     Layer (JSON)
// Inode            "i:"    i:<tenant>:<layerID>:<inodeID>           Inode (JSON)
// Inode versions   "v:"    v:<tenant>:<inodeID>:<layerID>           empty
// Directory entry  "e:"    e:<tenant>:<layerID>:<dirID>:<name>      Entry (JSON)
// Block            "b:"    b:<tenant>:<ref>                         refcount (8 bytes) + data

const (
	prefixTenant  = "t:"
	prefixLayer   = "l:"
	prefixInode   = "i:"
	prefixVersion = "v:"
	prefixEntry   = "e:"
	prefixBlock   = "b:"
)

// ============================================================================
// Key Generation Functions
// ============================================================================

func keyTenant(tenant string) []byte {
	return []byte(prefixTenant + tenant)
}

func keyLayer(tenant, layerID string) []byte {
	return []byte(prefixLayer + tenant + ":" + layerID)
}

func keyLayerPrefix(tenant string) []byte {
	return []byte(prefixLayer + tenant + ":")
}

func keyInode(tenant, layerID, id string) []byte {
	return []byte(prefixInode + tenant + ":" + layerID + ":" + id)
}

func keyInodePrefix(tenant, layerID string) []byte {
	return []byte(prefixInode + tenant + ":" + layerID + ":")
}

func keyAllInodesPrefix(tenant string) []byte {
	return []byte(prefixInode + tenant + ":")
}

func keyVersion(tenant, id, layerID string) []byte {
	return []byte(prefixVersion + tenant + ":" + id + ":" + layerID)
}

func keyVersionPrefix(tenant, id string) []byte {
	return []byte(prefixVersion + tenant + ":" + id + ":")
}

func keyEntry(tenant, layerID, dirID, name string) []byte {
	return []byte(prefixEntry + tenant + ":" + layerID + ":" + dirID + ":" + name)
}

func keyEntryDirPrefix(tenant, layerID, dirID string) []byte {
	return []byte(prefixEntry + tenant + ":" + layerID + ":" + dirID + ":")
}

func keyEntryLayerPrefix(tenant, layerID string) []byte {
	return []byte(prefixEntry + tenant + ":" + layerID + ":")
}

func keyBlock(tenant, ref string) []byte {
	return []byte(prefixBlock + tenant + ":" + ref)
}

func keyBlockPrefix(tenant string) []byte {
	return []byte(prefixBlock + tenant + ":")
}

// ============================================================================
// Value Encoding
// ============================================================================

func encodeJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

func decodeLayer(data []byte) (*metadata.Layer, error) {
	var l metadata.Layer
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to decode layer: %w", err)
	}
	return &l, nil
}

func decodeInode(data []byte) (*metadata.Inode, error) {
	var i metadata.Inode
	if err := json.Unmarshal(data, &i); err != nil {
		return nil, fmt.Errorf("failed to decode inode: %w", err)
	}
	return &i, nil
}

func decodeEntry(data []byte) (*metadata.Entry, error) {
	var e metadata.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}
	return &e, nil
}

func decodeTenant(data []byte) (*metadata.Tenant, error) {
	var t metadata.Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode tenant: %w", err)
	}
	return &t, nil
}

// encodeBlock prefixes the content with its reference count.
func encodeBlock(refs uint64, data []byte) []byte {
	buf := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(buf[:8], refs)
	copy(buf[8:], data)
	return buf
}

func decodeBlock(val []byte) (uint64, []byte, error) {
	if len(val) < 8 {
		return 0, nil, fmt.Errorf("invalid block record: %d bytes", len(val))
	}
	return binary.BigEndian.Uint64(val[:8]), val[8:], nil
}
