package repository

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestCreate_ReturnsInsertID(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (username, password_hash) VALUES (?, ?)`)).
		WithArgs("witch", "hash").
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := repo.Create("witch", "hash")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != 7 {
		t.Fatalf("got id %d, want 7", id)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestGetByUsername(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewUserRepository(db)

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "username", "password_hash"}).
			AddRow(1, "witch", "hash")
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, username, password_hash FROM users WHERE username = ?`)).
			WithArgs("witch").
			WillReturnRows(rows)

		u, err := repo.GetByUsername("witch")
		if err != nil {
			t.Fatalf("GetByUsername: %v", err)
		}
		if u == nil || u.Username != "witch" {
			t.Fatalf("unexpected user: %+v", u)
		}
	})

	t.Run("not found is nil, nil", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, username, password_hash FROM users WHERE username = ?`)).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash"}))

		u, err := repo.GetByUsername("ghost")
		if err != nil {
			t.Fatalf("GetByUsername: %v", err)
		}
		if u != nil {
			t.Fatalf("expected nil user, got %+v", u)
		}
	})
}
