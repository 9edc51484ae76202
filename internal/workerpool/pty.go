package workerpool

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// pseudoterminal is a single pty pair allocated via the same raw
// ioctl sequence glibc's posix_openpt/grantpt/unlockpt/ptsname use:
// open /dev/ptmx, unlock it, and read back its slave number. There is
// no pty-allocation library anywhere in the retrieval pack, so this is
// hand-rolled directly against golang.org/x/sys/unix, the way the
// teacher reaches for unix syscalls rather than a wrapper library
// whenever one is missing.
type pseudoterminal struct {
	f       *os.File
	ptsName string
}

func newPseudoterminal() (*pseudoterminal, error) {
	f, err := os.OpenFile("/dev/ptmx", os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	fd := int(f.Fd())

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		f.Close()
		return nil, err
	}
	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &pseudoterminal{f: f, ptsName: fmt.Sprintf("/dev/pts/%d", n)}, nil
}

func (p *pseudoterminal) Fd() int          { return int(p.f.Fd()) }
func (p *pseudoterminal) File() *os.File   { return p.f }
func (p *pseudoterminal) PtsName() string  { return p.ptsName }
func (p *pseudoterminal) Close() error     { return p.f.Close() }
