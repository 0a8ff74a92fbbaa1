package postgresadapter

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

type UUIDGenerator struct{}

func (UUIDGenerator) NewID(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

// Models returns the gorm models for migration.
func Models() []any {
	return []any{
		&queueJobModel{},
		&streamLeaseModel{},
		&messageLogModel{},
		&errorLogModel{},
	}
}
