package vectorutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/vector"
	"github.com/storyloom/loom/pkg/vector/chroma"
	"github.com/storyloom/loom/pkg/vector/qdrant"
	"github.com/storyloom/loom/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	ProviderType string
	TargetURL    string
	Host         string
	Port         int
	APIKey       string
	DBPath       string
	Logger       *zap.Logger
}

func NewVectorDriver(o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "chroma":
		return chroma.NewDriver(chroma.Config{
			URL: o.TargetURL,
		}, o.Logger)
	case "qdrant":
		return qdrant.NewDriver(qdrant.Config{
			Host:   o.Host,
			Port:   o.Port,
			APIKey: o.APIKey,
		}, o.Logger)
	case "sqlitevec":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath: o.DBPath,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
