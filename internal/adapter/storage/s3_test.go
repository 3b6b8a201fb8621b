package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/afero"

	"github.com/semmidev/rotabak/internal/config"
	"github.com/semmidev/rotabak/internal/domain"

	. "github.com/smartystreets/goconvey/convey"
)

func TestS3Storage(t *testing.T) {
	Convey("Given an S3Storage", t, func() {
		tempDir, err := os.MkdirTemp("", "s3_storage_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		artifact := filepath.Join(tempDir, "2024-05-01.zip")
		So(os.WriteFile(artifact, []byte("payload"), 0644), ShouldBeNil)
		ctx := context.Background()

		Convey("When the artifact does not exist", func() {
			s := &S3Storage{bucket: "b"}
			err := s.Upload(ctx, filepath.Join(tempDir, "missing.zip"), "2024-05-01/missing.zip")

			Convey("It should report the artifact as missing", func() {
				So(errors.Is(err, domain.ErrArtifactNotFound), ShouldBeTrue)
			})
		})

		Convey("When no credential provider is configured", func() {
			s := &S3Storage{bucket: "b"}
			err := s.Upload(ctx, artifact, "2024-05-01/2024-05-01.zip")

			Convey("It should report missing credentials", func() {
				So(errors.Is(err, domain.ErrCredentialsMissing), ShouldBeTrue)
			})
		})

		Convey("When the credential chain cannot resolve", func() {
			s := &S3Storage{
				bucket: "b",
				credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
					return aws.Credentials{}, errors.New("no EC2 IMDS role found")
				}),
			}
			err := s.Upload(ctx, artifact, "2024-05-01/2024-05-01.zip")

			Convey("It should report missing credentials", func() {
				So(errors.Is(err, domain.ErrCredentialsMissing), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "IMDS")
			})
		})

		Convey("Keys are joined below the prefix", func() {
			s := &S3Storage{prefix: "nightly"}
			So(s.fullKey("2024-05-01/2024-05-01.zip"), ShouldEqual, "nightly/2024-05-01/2024-05-01.zip")
			So(s.stripPrefix("nightly/2024-05-01/2024-05-01.zip"), ShouldEqual, "2024-05-01/2024-05-01.zip")

			bare := &S3Storage{}
			So(bare.fullKey("2024-05-01/a.zip"), ShouldEqual, "2024-05-01/a.zip")
		})

		Convey("digest should hash and rewind the file", func() {
			f, err := os.Open(artifact)
			So(err, ShouldBeNil)
			defer f.Close()

			size, sum, err := digest(f)
			So(err, ShouldBeNil)
			So(size, ShouldEqual, 7)
			So(sum, ShouldEqual, "239f59ed55e737c77147cf55ad0c1b030b6d7ee748a7426952f9b852d5a935e5")

			buf := make([]byte, 7)
			n, _ := f.Read(buf)
			So(string(buf[:n]), ShouldEqual, "payload")
		})
	})
}

func TestFactory(t *testing.T) {
	Convey("Given the storage factory", t, func() {
		ctx := context.Background()
		fs := afero.NewMemMapFs()

		Convey("A local target should build a mirror", func() {
			s, err := New(ctx, fs, &config.UploadTarget{Type: TypeLocal, Path: "/mirror"})
			So(err, ShouldBeNil)
			_, ok := s.(domain.RemoteLister)
			So(ok, ShouldBeTrue)
		})

		Convey("A telegram target with a bad chat id should fail", func() {
			_, err := New(ctx, fs, &config.UploadTarget{Type: TypeTelegram, BotToken: "x", ChatID: "abc"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "invalid telegram chat_id")
		})

		Convey("An unknown type should fail", func() {
			_, err := New(ctx, fs, &config.UploadTarget{Type: "ftp"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "unsupported upload target type")
		})
	})
}
