package storage

import (
	"errors"
	"testing"
)

func TestOpenRejectsEmptyURL(t *testing.T) {
	t.Parallel()

	if _, _, openErr := Open("   "); openErr == nil {
		t.Fatal("expected error for empty database URL")
	}
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	t.Parallel()

	_, _, openErr := Open("mysql://root@localhost/app")
	if !errors.Is(openErr, ErrUnsupportedDialect) {
		t.Fatalf("expected unsupported dialect, got %v", openErr)
	}
}

func TestOpenRejectsSchemelessURL(t *testing.T) {
	t.Parallel()

	if _, _, openErr := Open("just-a-file.db"); openErr == nil {
		t.Fatal("expected error for URL without a scheme")
	}
}

func TestOpenSQLiteInMemory(t *testing.T) {
	t.Parallel()

	gormDB, driverLabel, openErr := Open("sqlite:file:storagetest?mode=memory&cache=shared")
	if openErr != nil {
		t.Fatalf("open error: %v", openErr)
	}
	if driverLabel != "sqlite" {
		t.Fatalf("expected sqlite label, got %q", driverLabel)
	}
	if gormDB == nil {
		t.Fatal("expected a database handle")
	}
}

func TestBuildSQLiteDSNForms(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		databaseURL string
		wantLabel   string
		wantErr     bool
	}{
		{name: "opaque memory", databaseURL: "sqlite:file:dsnform?mode=memory&cache=shared", wantLabel: "sqlite"},
		{name: "sqlite3 alias", databaseURL: "sqlite3:file:dsnalias?mode=memory&cache=shared", wantLabel: "sqlite"},
		{name: "empty path", databaseURL: "sqlite://", wantErr: true},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			_, driverLabel, openErr := Open(testCase.databaseURL)
			if testCase.wantErr {
				if openErr == nil {
					t.Fatal("expected error")
				}
				return
			}
			if openErr != nil {
				t.Fatalf("open error: %v", openErr)
			}
			if driverLabel != testCase.wantLabel {
				t.Fatalf("expected label %q, got %q", testCase.wantLabel, driverLabel)
			}
		})
	}
}
