package app

import (
	"context"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
)

type imageClient interface {
	ImageList(ctx context.Context, options types.ImageListOptions) ([]types.ImageSummary, error)
	ImageSave(ctx context.Context, imageIDs []string) (io.ReadCloser, error)
}

func (b *scanner) imageClient() (imageClient, func(), error) {
	if b.images != nil {
		return b.images, func() {}, nil
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, nil, err
	}

	return cli, func() { cli.Close() }, nil
}

// ScanImage exports local docker images and scans each export as a tarball.
// Without arguments every local image is scanned.
func (b *scanner) ScanImage(ctx context.Context, images []string) error {
	cli, closeFn, err := b.imageClient()
	if err != nil {
		return err
	}

	defer closeFn()

	if len(images) == 0 {
		summaries, err := cli.ImageList(ctx, types.ImageListOptions{})
		if err != nil {
			return err
		}

		for _, s := range summaries {
			name := s.ID
			if len(s.RepoTags) > 0 && s.RepoTags[0] != "<none>:<none>" {
				name = s.RepoTags[0]
			}

			images = append(images, name)
		}
	}

	start := time.Now()

	stop := b.startProgress(start)
	defer stop()

	for _, image := range images {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.scanImage(ctx, cli, image)
	}

	stop()

	b.summary(time.Since(start))
	return nil
}

func (b *scanner) scanImage(ctx context.Context, cli imageClient, image string) {
	r := &report{}
	defer b.flush(r)

	b.stats.IncImage()

	if b.verbose {
		log.Infof("Inspecting image %s", image)
	}

	rc, err := cli.ImageSave(ctx, []string{image})
	if err != nil {
		r.Error(image, err)
		return
	}

	defer rc.Close()

	if err := b.inspector.InspectImage(rc, image, r); err != nil {
		r.Error(image, err)
	}
}
