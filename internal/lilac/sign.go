package lilac

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Publisher signs built artifacts and links them into the repository
// destination directory. An empty DestDir disables publishing.
type Publisher struct {
	DestDir string
	GPGKey  string // key id for --local-user; empty uses the default key
	Exec    *Executor
	Mirror  *MirrorClient // optional post-publish upload
}

// SignAndCopy detach-signs every artifact in buildDir and hard-links the
// artifact and its signature into DestDir. Already-linked files are left
// alone. Publishing must not be torn mid-way by an interrupt, so the
// in-publish flag is held for the duration.
func (p *Publisher) SignAndCopy(buildDir string) error {
	if p.DestDir == "" {
		return nil
	}

	publishingAtomic.Store(1)
	defer publishingAtomic.Store(0)

	files, err := artifactFiles(buildDir)
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := p.signFile(file); err != nil {
			return err
		}
		for _, src := range []string{file, file + ".sig"} {
			dst := filepath.Join(p.DestDir, filepath.Base(src))
			if err := os.Link(src, dst); err != nil && !os.IsExist(err) {
				return fmt.Errorf("failed to link %s into %s: %w", filepath.Base(src), p.DestDir, err)
			}
		}
	}

	if p.Mirror != nil {
		if err := p.Mirror.UploadArtifacts(p.Exec.Context, files); err != nil {
			// the local repository is already consistent; a mirror hiccup
			// is not a build failure
			colWarn.Printf("mirror upload failed: %v\n", err)
		}
	}
	return nil
}

func (p *Publisher) signFile(file string) error {
	sig := file + ".sig"
	if _, err := os.Stat(sig); err == nil {
		return nil
	}
	args := []string{"--detach-sign", "--no-armor", "--batch", "--yes"}
	if p.GPGKey != "" {
		args = append(args, "--local-user", p.GPGKey)
	}
	args = append(args, "--", file)
	cmd := exec.Command("gpg", args...)
	if err := p.Exec.Run(cmd); err != nil {
		return fmt.Errorf("failed to sign %s: %w", filepath.Base(file), err)
	}
	return nil
}
