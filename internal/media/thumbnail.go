package media

import (
	"fmt"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Thumbnailer generates a scaled-down preview of an image. It is the
// concrete default for the "thumbnailing toolkit" spec.md §1 lists as an
// out-of-scope external collaborator — the core only depends on this
// interface.
type Thumbnailer interface {
	// Thumbnail reads the image at srcPath, scales it to fit within
	// ThumbSize×ThumbSize preserving aspect ratio, and writes it to
	// dstPath in the same format as the source.
	Thumbnail(srcPath, dstPath string) error
}

// ImagingThumbnailer implements Thumbnailer with disintegration/imaging.
type ImagingThumbnailer struct{}

// Thumbnail implements Thumbnailer.
func (ImagingThumbnailer) Thumbnail(srcPath, dstPath string) error {
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	scaled := imaging.Fit(img, ThumbSize, ThumbSize, imaging.Lanczos)
	if err := imaging.Save(scaled, dstPath); err != nil {
		return fmt.Errorf("save thumbnail: %w", err)
	}
	return nil
}

// ImageThumbnailPath builds the `thumb_<unique>` sibling path for an
// original image upload, per spec.md §4.3.
func (s *Store) ImageThumbnailPath(uniqueName string) string {
	return filepath.Join(s.base, "images", "thumb_"+uniqueName)
}

// VideoThumbnailPath builds the `thumb_<unique>.jpg` sibling path for an
// original video upload, per spec.md §4.3.
func (s *Store) VideoThumbnailPath(uniqueName string) string {
	return filepath.Join(s.base, "videos", "thumb_"+uniqueName+".jpg")
}
