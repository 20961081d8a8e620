package docs

import (
	_ "embed"
	"sync"

	"github.com/swaggo/swag"
)

//go:embed openapi.json
var openAPI string

type doc struct{}

func (doc) ReadDoc() string {
	return openAPI
}

var registerOnce sync.Once

// Register makes the embedded document available at /swagger/doc.json.
func Register() {
	registerOnce.Do(func() {
		swag.Register(swag.Name, doc{})
	})
}
