package snapshot

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"
	carutil "github.com/ipld/go-car/util"
)

// chunkState is the chunker's explicit state machine (spec §4.4): a part
// file is either not open (Idle), in the process of being opened
// (Opening), open and accepting writes (Open, tracking bytes written so
// far), or being flushed and closed (Closing). Driving this as an
// explicit enum rather than ad-hoc nil checks is what lets WriteBlock refuse to
// tear a framed block across a part boundary without deadlocking the
// writer on backpressure.
type chunkState int

const (
	stateIdle chunkState = iota
	stateOpening
	stateOpen
	stateClosing
)

// Chunker writes a sequence of content blocks into fixed-target-size part
// files, never splitting a length-delimited block across two parts. The
// first part always begins with the CAR header alone.
type Chunker struct {
	dir            string
	targetPartSize int64

	state       chunkState
	partIndex   int
	written     int64
	cur       *os.File
	curBuf    *bufio.Writer
	partPaths []string
}

// NewChunker prepares a chunker that will write parts under dir, each
// targeted (not strictly bounded — a single block is never split) at
// targetPartSize bytes.
func NewChunker(dir string, targetPartSize int64) *Chunker {
	return &Chunker{dir: dir, targetPartSize: targetPartSize, state: stateIdle}
}

// WriteHeader stages the CAR header as the sole content of part 0;
// Part 0 is opened and closed immediately so that header bytes are never
// mixed with block payloads.
func (c *Chunker) WriteHeader(header []byte) error {
	if c.state != stateIdle {
		return fmt.Errorf("snapshot: WriteHeader called out of order (state=%d)", c.state)
	}
	c.state = stateOpening
	if err := c.openNewPart(); err != nil {
		return err
	}
	c.state = stateOpen
	if _, err := c.curBuf.Write(header); err != nil {
		return fmt.Errorf("snapshot: write header: %w", err)
	}
	c.written += int64(len(header))
	c.state = stateClosing
	return c.closeCurrent()
}

// WriteBlock appends one length-delimited (cid, data) block, opening a
// new part first if the current one has reached its target size.
func (c *Chunker) WriteBlock(id cid.Cid, data []byte) error {
	frameLen := carutil.LdSize(id.Bytes(), data)

	if c.state == stateIdle {
		c.state = stateOpening
		if err := c.openNewPart(); err != nil {
			return err
		}
		c.state = stateOpen
	}

	if c.written > 0 && c.written+int64(frameLen) > c.targetPartSize {
		c.state = stateClosing
		if err := c.closeCurrent(); err != nil {
			return err
		}
		c.state = stateOpening
		if err := c.openNewPart(); err != nil {
			return err
		}
		c.state = stateOpen
	}

	if err := carutil.LdWrite(c.curBuf, id.Bytes(), data); err != nil {
		return fmt.Errorf("snapshot: write block: %w", err)
	}
	c.written += int64(frameLen)
	return nil
}

// Close flushes and closes whatever part is currently open and returns
// the ordered list of part file paths written.
func (c *Chunker) Close() ([]string, error) {
	if c.state == stateOpen {
		c.state = stateClosing
		if err := c.closeCurrent(); err != nil {
			return nil, err
		}
	}
	c.state = stateIdle
	return c.partPaths, nil
}

func (c *Chunker) openNewPart() error {
	path := filepath.Join(c.dir, fmt.Sprintf("part-%05d", c.partIndex))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: open part %s: %w", path, err)
	}
	c.cur = f
	c.curBuf = bufio.NewWriter(f)
	c.partPaths = append(c.partPaths, path)
	c.partIndex++
	c.written = 0
	return nil
}

func (c *Chunker) closeCurrent() error {
	if err := c.curBuf.Flush(); err != nil {
		c.cur.Close()
		return fmt.Errorf("snapshot: flush part: %w", err)
	}
	err := c.cur.Close()
	c.cur = nil
	c.curBuf = nil
	c.state = stateIdle
	if err != nil {
		return fmt.Errorf("snapshot: close part: %w", err)
	}
	return nil
}
