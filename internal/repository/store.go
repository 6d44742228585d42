package repository

import (
	"github.com/unclebandit/survey-escalation/internal/db"
)

// Store is the full persistence surface the services depend on.
type Store interface {
	ParticipantRepositoryInterface
	SurveyRepositoryInterface
}

type sqlStore struct {
	*ParticipantRepository
	*SurveyRepository
}

// OpenStore returns the store for driver. "memory" keeps everything in process;
// any other driver is opened through db.Open. The returned func releases it.
func OpenStore(driver, dsn string) (Store, func() error, error) {
	if driver == "memory" {
		return NewMemoryStore(), func() error { return nil }, nil
	}
	conn, dialect, err := db.Open(driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	s := sqlStore{
		ParticipantRepository: &ParticipantRepository{DB: conn, Dialect: dialect},
		SurveyRepository:      &SurveyRepository{DB: conn, Dialect: dialect},
	}
	return s, conn.Close, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = sqlStore{}
)
