package app

import (
	"github.com/vk/ucdpipe/internal/registry"
	"github.com/vk/ucdpipe/modules/ucd"
)

// coreModules is the definitive list of all modules that are compiled into
// the ucdpipe binary.
var coreModules = []registry.Module{
	&ucd.Module{},
}
