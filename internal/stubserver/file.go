package stubserver

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"preview/internal/apperrors"
	"preview/internal/preview"
	"strings"
	"time"
)

// Content types of the rendered output.
const (
	ContentTypePDF = "application/pdf"
	ContentTypeZip = "application/zip"
)

// File is a rendered job output.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// File returns the rendered preview of a finished job, or the typesetting
// archive holding the preview and the job description when archive is set.
func (s *Store) File(ctx context.Context, id string, archive bool) (*File, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if state := job.CurrentState(); state != preview.StatePreviewGenerated {
		return nil, apperrors.Conflict("job", id, fmt.Sprintf("preview not generated (state %q)", state))
	}

	pdf := renderPDF(job)
	if !archive {
		return &File{Name: id + ".pdf", ContentType: ContentTypePDF, Data: pdf}, nil
	}

	data, err := buildArchive(job, pdf)
	if err != nil {
		return nil, apperrors.Internal("store.file", err)
	}
	return &File{Name: id + ".zip", ContentType: ContentTypeZip, Data: data}, nil
}

var pdfEscaper = strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)

// renderPDF produces a one-page placeholder document naming the job.
func renderPDF(job *preview.PreviewJob) []byte {
	text := fmt.Sprintf("Preview %s: %s %s", job.ID, job.BibleSelectionParams.ProjectName, job.BibleSelectionParams.SelectedBooks)
	stream := fmt.Sprintf("BT /F1 %g Tf 36 %g Td (%s) Tj ET",
		job.TypesettingParams.FontSizeInPts,
		job.TypesettingParams.PageHeightInPts-36,
		pdfEscaper.Replace(text),
	)

	var buf bytes.Buffer
	offsets := make([]int, 0, 5)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		job.TypesettingParams.PageWidthInPts, job.TypesettingParams.PageHeightInPts))
	obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Times-Roman >>")

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// buildArchive zips the preview together with the job description.
func buildArchive(job *preview.PreviewJob, pdf []byte) ([]byte, error) {
	desc, err := preview.MarshalJob(job)
	if err != nil {
		return nil, err
	}

	modified := time.Now()
	if cur := job.Current(); cur != nil && !cur.Timestamp.IsZero() {
		modified = cur.Timestamp
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range []struct {
		name string
		data []byte
	}{
		{job.ID + ".pdf", pdf},
		{"job.json", desc},
	} {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", f.name, err)
		}
		if _, err := w.Write(f.data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return buf.Bytes(), nil
}
