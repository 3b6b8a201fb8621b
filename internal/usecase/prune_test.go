package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/semmidev/rotabak/internal/domain"

	. "github.com/smartystreets/goconvey/convey"
)

func TestPruner(t *testing.T) {
	Convey("Given a destination root with previous runs", t, func() {
		fs := afero.NewMemMapFs()
		now := time.Now()
		for _, dir := range []string{"2024-05-01", "2024-05-02", "2024-05-03"} {
			So(fs.MkdirAll("/dst/"+dir, 0755), ShouldBeNil)
			writeFile(fs, "/dst/"+dir+".zip", "archive", now)
		}
		writeFile(fs, "/dst/notes.txt", "keep me", now)
		ctx := context.Background()

		Convey("In directory mode", func() {
			p := NewPruner(fs, PruneDirectories, ".zip", nopLogger{})
			result, err := p.Prune(ctx, "/dst", "2024-05-03")

			Convey("Only the allowed directory should remain", func() {
				So(err, ShouldBeNil)
				So(result.Deleted, ShouldResemble, []string{"2024-05-01", "2024-05-02"})

				for _, dir := range []string{"2024-05-01", "2024-05-02"} {
					exists, _ := afero.DirExists(fs, "/dst/"+dir)
					So(exists, ShouldBeFalse)
				}
				exists, _ := afero.DirExists(fs, "/dst/2024-05-03")
				So(exists, ShouldBeTrue)
			})

			Convey("Files should be left alone", func() {
				So(err, ShouldBeNil)
				for _, name := range []string{"2024-05-01.zip", "2024-05-02.zip", "notes.txt"} {
					exists, _ := afero.Exists(fs, "/dst/"+name)
					So(exists, ShouldBeTrue)
				}
			})
		})

		Convey("In file mode", func() {
			p := NewPruner(fs, PruneFiles, ".zip", nopLogger{})
			result, err := p.Prune(ctx, "/dst", "2024-05-03")

			Convey("Only archives without the allowed date should be removed", func() {
				So(err, ShouldBeNil)
				So(result.Deleted, ShouldResemble, []string{"2024-05-01.zip", "2024-05-02.zip"})

				exists, _ := afero.Exists(fs, "/dst/2024-05-03.zip")
				So(exists, ShouldBeTrue)
				exists, _ = afero.Exists(fs, "/dst/notes.txt")
				So(exists, ShouldBeTrue)
				exists, _ = afero.DirExists(fs, "/dst/2024-05-01")
				So(exists, ShouldBeTrue)
			})
		})

		Convey("When deletion is not permitted", func() {
			p := NewPruner(afero.NewReadOnlyFs(fs), PruneDirectories, ".zip", nopLogger{})
			result, err := p.Prune(ctx, "/dst", "2024-05-03")

			Convey("It should stop at the first failure and report it", func() {
				So(errors.Is(err, domain.ErrPrune), ShouldBeTrue)
				So(result.Deleted, ShouldBeEmpty)
				exists, _ := afero.DirExists(fs, "/dst/2024-05-01")
				So(exists, ShouldBeTrue)
			})
		})

		Convey("When the root does not exist", func() {
			p := NewPruner(fs, PruneFiles, ".zip", nopLogger{})
			_, err := p.Prune(ctx, "/missing", "2024-05-03")

			Convey("It should report a prune failure", func() {
				So(errors.Is(err, domain.ErrPrune), ShouldBeTrue)
			})
		})
	})
}
