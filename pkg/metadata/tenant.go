package metadata

import (
	"fmt"

	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

// DefaultTenant is used when a caller does not name one.
const DefaultTenant = "default"

// BindTenant stamps an untagged record with the transaction's tenant and
// rejects a record tagged for a different tenant. Every store calls it before
// persisting a record.
func BindTenant(txTenant string, recordTenant *string) error {
	if *recordTenant == "" {
		*recordTenant = txTenant
		return nil
	}
	if *recordTenant != txTenant {
		return errors.NewAccessDeniedError(
			fmt.Sprintf("record belongs to tenant %q, transaction is scoped to %q", *recordTenant, txTenant))
	}
	return nil
}

// UnknownTenantError is returned by stores when a transaction names a tenant
// that was never created.
func UnknownTenantError(tenant string) error {
	return errors.NewAccessDeniedError(fmt.Sprintf("unknown tenant %q", tenant))
}

// InodeNotFound is the error stores return when a layer holds no record for an inode.
func InodeNotFound(layerID, id string) error {
	return errors.NewNotFoundError(layerID+"/"+id, "inode")
}

// EntryNotFound is the error stores return when a layer records nothing for a name.
func EntryNotFound(name string) error {
	return errors.NewNotFoundError(name, "entry")
}

// BlockNotFound is the error stores return for unknown block refs.
func BlockNotFound(ref string) error {
	return errors.NewNotFoundError(ref, "block")
}
