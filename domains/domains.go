// Package domains links the generated protocol domains into one catalog.
package domains

import (
	"devtools-rpc/domain"
	"devtools-rpc/domains/runtime"
	"devtools-rpc/domains/target"
)

// Catalog holds every domain compiled into this module.
var Catalog = domain.NewCatalog(
	target.Domain,
	runtime.Domain,
)
