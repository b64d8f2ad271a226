package pkg

import "fmt"

var (
	// These variables are here only to show current version. They are set in makefile during build process
	PartmigVersion         = "devel"
	GitRevision            = "devel"
	PartmigVersionRevision = fmt.Sprintf("%s-%s", PartmigVersion, GitRevision)
)
