package cmd

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/threefoldtech/shipgate/internal/config"
	"github.com/threefoldtech/shipgate/internal/image"
)

func imageOptions(conf config.Image) image.Options {
	return image.Options{
		Base:         conf.Base,
		Requirements: conf.Requirements,
		Port:         conf.Port,
		App:          conf.App,
		Server:       conf.Server,
	}
}

// RenderDockerfile writes the service build file to path, or to out when path is empty
func RenderDockerfile(conf config.Config, path string, out io.Writer) error {
	content, err := image.Render(imageOptions(conf.Image))
	if err != nil {
		return err
	}

	if path == "" {
		_, err = out.Write(content)
		return err
	}

	return errors.Wrapf(os.WriteFile(path, content, 0644), "failed to write %s", path)
}

// CheckDockerfile verifies the build file at path
func CheckDockerfile(conf config.Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	return image.Check(file, imageOptions(conf.Image))
}
