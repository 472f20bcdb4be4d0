package dpkg_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/julien-sobczak/libreoffice-installer/internal/dpkg"
	"github.com/julien-sobczak/libreoffice-installer/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records the commands and fails the ones listed in failures.
type fakeRunner struct {
	calls    []string
	failures map[int]error // Call index => error
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	index := len(r.calls)
	r.calls = append(r.calls, strings.Join(append([]string{name}, args...), " "))
	if err, ok := r.failures[index]; ok {
		return []byte(fmt.Sprintf("output of call %d", index)), err
	}
	return nil, nil
}

func (r *fakeRunner) count(prefix string) int {
	n := 0
	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func controlFile(name string) string {
	return fmt.Sprintf("Package: %s\nVersion: 24.2.3.2-2\nArchitecture: amd64\nDescription: test\n", name)
}

// extractedRelease creates <dir>/Root/DEBS with the given packages.
func extractedRelease(t *testing.T, names ...string) string {
	root := filepath.Join(t.TempDir(), "LibreOffice_24.2.3.2_Linux_x86-64_deb")
	for _, name := range names {
		testutil.BuildDebianArchive(t, filepath.Join(root, "DEBS", name+".deb"), controlFile(name), "xz")
	}
	return root
}

func TestInstall(t *testing.T) {
	root := extractedRelease(t, "libreoffice24.2-writer", "libobasis24.2-core")
	runner := &fakeRunner{}

	result, err := dpkg.NewInstaller(runner).Install(context.Background(), root)
	require.NoError(t, err)
	assert.False(t, result.Repaired)

	core := filepath.Join(root, "DEBS", "libobasis24.2-core.deb")
	writer := filepath.Join(root, "DEBS", "libreoffice24.2-writer.deb")
	assert.Equal(t, []string{core, writer}, result.Files)
	require.Len(t, result.Packages, 2)
	assert.Equal(t, "libobasis24.2-core", result.Packages[0].Name())

	assert.Equal(t, []string{"sudo dpkg -i " + core + " " + writer}, runner.calls)
}

func TestInstallWithoutSudo(t *testing.T) {
	root := extractedRelease(t, "libobasis24.2-core")
	runner := &fakeRunner{}

	_, err := dpkg.NewInstaller(runner, dpkg.WithSudo("")).Install(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"dpkg -i " + filepath.Join(root, "DEBS", "libobasis24.2-core.deb")}, runner.calls)
}

func TestInstallRepairsDependencies(t *testing.T) {
	root := extractedRelease(t, "libobasis24.2-core")
	runner := &fakeRunner{failures: map[int]error{0: errors.New("exit status 1")}}

	result, err := dpkg.NewInstaller(runner).Install(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, result.Repaired)

	assert.Equal(t, 2, runner.count("sudo dpkg -i"))
	assert.Equal(t, 1, runner.count("sudo apt-get"))
	assert.Equal(t, "sudo apt-get -f install -y", runner.calls[1])
}

func TestInstallFailsAfterRetry(t *testing.T) {
	root := extractedRelease(t, "libobasis24.2-core")
	runner := &fakeRunner{failures: map[int]error{
		0: errors.New("exit status 1"),
		2: errors.New("exit status 2"),
	}}

	_, err := dpkg.NewInstaller(runner).Install(context.Background(), root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dpkg.ErrInstall))

	var ierr *dpkg.InstallError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, "output of call 2", ierr.Output)
	assert.Contains(t, err.Error(), "exit status 2")
	assert.Len(t, runner.calls, 3)
}

func TestInstallFailsWhenRepairFails(t *testing.T) {
	root := extractedRelease(t, "libobasis24.2-core")
	runner := &fakeRunner{failures: map[int]error{
		0: errors.New("exit status 1"),
		1: errors.New("exit status 100"),
	}}

	_, err := dpkg.NewInstaller(runner).Install(context.Background(), root)
	require.Error(t, err)
	assert.ErrorIs(t, err, dpkg.ErrInstall)
	assert.Len(t, runner.calls, 2)
}

func TestInstallWithoutPackages(t *testing.T) {
	tests := []struct {
		name  string
		files map[string][]byte
		want  error
	}{
		{
			name:  "no DEBS directory",
			files: map[string][]byte{"readmes/README": []byte("readme")},
			want:  dpkg.ErrNoPackagesDir,
		},
		{
			name:  "empty DEBS directory",
			files: map[string][]byte{"DEBS/install": []byte("#!/bin/sh")},
			want:  dpkg.ErrNoPackages,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			testutil.PopulateTestDir(t, root, tt.files)
			runner := &fakeRunner{}

			_, err := dpkg.NewInstaller(runner).Install(context.Background(), root)
			require.Error(t, err)
			assert.ErrorIs(t, err, dpkg.ErrInstall)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, runner.calls)
		})
	}
}

func TestInstallRejectsInvalidPackages(t *testing.T) {
	root := t.TempDir()
	testutil.PopulateTestDir(t, root, map[string][]byte{
		"DEBS/broken.deb": []byte("<html>truncated</html>"),
	})
	runner := &fakeRunner{}

	_, err := dpkg.NewInstaller(runner).Install(context.Background(), root)
	require.Error(t, err)
	assert.ErrorIs(t, err, dpkg.ErrInvalidPackage)
	assert.Empty(t, runner.calls)
}

func TestExecRunner(t *testing.T) {
	out, err := dpkg.ExecRunner{}.Run(context.Background(), "sh", "-c", "echo hello; echo oops >&2")
	require.NoError(t, err)
	assert.Equal(t, "hello\noops\n", string(out))

	out, err = dpkg.ExecRunner{}.Run(context.Background(), "sh", "-c", "echo failing; exit 3")
	require.Error(t, err)
	assert.Equal(t, "failing\n", string(out))
	assert.Contains(t, err.Error(), "exit status 3")
}
