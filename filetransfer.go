package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileTransferMediator is the File Transfer Mediator (C7): on offer it
// allocates an ephemeral listener, accepts the uploader, streams bytes to
// the spool, registers the entry and broadcasts availability. On request it
// allocates an ephemeral listener and streams spool bytes back out.
type FileTransferMediator struct {
	spoolDir string
	sess     *Session
	fan      *fanOut
	bindHost string
}

func NewFileTransferMediator(spoolDir, bindHost string, sess *Session, fan *fanOut) *FileTransferMediator {
	return &FileTransferMediator{spoolDir: spoolDir, sess: sess, fan: fan, bindHost: bindHost}
}

// sanitizeFilename rejects any name containing a parent reference ("..")
// and hidden (dot-prefixed) names, and strips directory components, keeping
// only the base name, matching the spool sanitization rule used by the
// manual scanner.
func sanitizeFilename(name string) (string, error) {
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid filename")
		}
	}
	base := filepath.Base(name)
	if base == "." || base == ".." || base == "" {
		return "", fmt.Errorf("invalid filename")
	}
	if strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("hidden files are not shareable")
	}
	return base, nil
}

// Offer validates an upload request, binds an ephemeral listener, and
// starts the background accept-then-stream goroutine. Returns the port to
// report back to the uploader in file_upload_port.
func (f *FileTransferMediator) Offer(uploader *Participant, fid, filename string, size int64) (assignedFID string, port int, err error) {
	if !uploader.Permissions().MayUpload {
		return "", 0, fmt.Errorf("permission_error: upload not allowed")
	}
	if size < 0 || size > maxFileSize {
		return "", 0, fmt.Errorf("file too large")
	}
	clean, err := sanitizeFilename(filename)
	if err != nil {
		return "", 0, err
	}
	if fid == "" {
		fid = uuid.NewString()
	}
	if _, exists := f.sess.LookupFile(fid); exists {
		return "", 0, fmt.Errorf("fid already exists")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(f.bindHost, "0"))
	if err != nil {
		return "", 0, err
	}
	port = ln.Addr().(*net.TCPAddr).Port

	go f.acceptUpload(ln, uploader, fid, clean, size)
	return fid, port, nil
}

func (f *FileTransferMediator) acceptUpload(ln net.Listener, uploader *Participant, fid, filename string, size int64) {
	defer ln.Close()
	ln.(*net.TCPListener).SetDeadline(time.Now().Add(fileListenerAcceptTimeout))
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	dest := filepath.Join(f.spoolDir, filename)
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return
	}
	defer out.Close()

	written, err := f.streamExactly(conn, out, size)
	if err != nil || written != size {
		os.Remove(dest)
		return
	}
	addFileBytes("upload", written)

	entry := SharedFileEntry{
		FID: fid, Filename: filename, SizeBytes: size,
		Uploader: uploader.Name, UploaderID: fmt.Sprint(uploader.ID),
		Path: dest, UploadedAt: time.Now(),
	}
	if !f.sess.RegisterFile(entry) {
		os.Remove(dest)
		return
	}
	f.fan.FileAvailable(ControlMsg{
		Type: "file_available", FID: fid, Filename: filename,
		Size: size, Uploader: uploader.Name,
	})
}

// streamExactly copies exactly want bytes from src to dst in fixed chunks,
// resetting an inactivity deadline on every successful read so a stalled
// peer is dropped rather than held open indefinitely.
func (f *FileTransferMediator) streamExactly(conn net.Conn, dst io.Writer, want int64) (int64, error) {
	buf := make([]byte, fileChunkSize)
	var total int64
	for total < want {
		conn.SetReadDeadline(time.Now().Add(fileTransferIdleTimeout))
		toRead := int64(len(buf))
		if remaining := want - total; remaining < toRead {
			toRead = remaining
		}
		n, err := conn.Read(buf[:toRead])
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			if err == io.EOF && total == want {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

// Request validates a download and binds an ephemeral listener to serve it,
// returning the port and size to report in file_download_port.
func (f *FileTransferMediator) Request(requester *Participant, fid string) (port int, size int64, err error) {
	if !requester.Permissions().MayDownload {
		return 0, 0, fmt.Errorf("permission_error: download not allowed")
	}
	entry, ok := f.sess.LookupFile(fid)
	if !ok {
		return 0, 0, fmt.Errorf("file_error: unknown fid %s", fid)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(f.bindHost, "0"))
	if err != nil {
		return 0, 0, err
	}
	port = ln.Addr().(*net.TCPAddr).Port

	go f.acceptDownload(ln, entry)
	return port, entry.SizeBytes, nil
}

func (f *FileTransferMediator) acceptDownload(ln net.Listener, entry SharedFileEntry) {
	defer ln.Close()
	ln.(*net.TCPListener).SetDeadline(time.Now().Add(fileListenerAcceptTimeout))
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	in, err := os.Open(entry.Path)
	if err != nil {
		return
	}
	defer in.Close()

	buf := make([]byte, fileChunkSize)
	for {
		conn.SetWriteDeadline(time.Now().Add(fileTransferIdleTimeout))
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return
			}
			addFileBytes("download", int64(n))
		}
		if rerr != nil {
			return
		}
	}
}
