package pg

import (
	"io/fs"

	_ "github.com/lib/pq"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/pressly/goose/v3"
)

// Migrate applies every pending migration found in dir. When fsys is not nil
// dir is resolved inside it, which lets binaries ship embedded migrations.
func Migrate(cfg Config, fsys fs.FS, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	goose.SetBaseFS(fsys)
	goose.SetLogger(logger.GetLogger())

	db, err := newSqlConnection(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err = goose.Up(db, dir); err != nil {
		return err
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", "version", version, "dir", dir)
	return nil
}
