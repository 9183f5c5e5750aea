package agent

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/example/stockroom/api-go/internal/model"
)

// RenderLabel lays out a job as a ZPL label: name, SKU and a Code 128
// barcode.
func RenderLabel(job model.EnrichedPrintJob) string {
	var b strings.Builder
	b.WriteString("^XA\n")
	b.WriteString("^CI0\n")
	if job.Name != "" {
		fmt.Fprintf(&b, "^FO40,30^A0N,32,32^FD%s^FS\n", zplField(job.Name))
	}
	fmt.Fprintf(&b, "^FO40,75^A0N,24,24^FDSKU %s^FS\n", zplField(job.SKU))
	fmt.Fprintf(&b, "^FO40,115^BCN,90,Y,N,N^FD%s^FS\n", zplField(job.Barcode))
	b.WriteString("^XZ\n")
	return b.String()
}

// zplField strips the ZPL control prefixes from field data.
func zplField(s string) string {
	r := strings.NewReplacer("^", " ", "~", " ", "\n", " ", "\r", " ")
	return strings.TrimSpace(r.Replace(s))
}

// CodePage returns the printer's single-byte encoding by name. An empty
// name or "utf-8" means no transcoding.
func CodePage(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "cp437", "ibm437":
		return charmap.CodePage437, nil
	case "cp850", "ibm850":
		return charmap.CodePage850, nil
	case "cp1252", "windows-1252":
		return charmap.Windows1252, nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	}
	return nil, fmt.Errorf("unsupported code page %q", name)
}

// Encode wraps label in a reader producing bytes in enc. Characters the code
// page lacks are replaced rather than failing the print.
func Encode(label string, enc encoding.Encoding) io.Reader {
	r := strings.NewReader(label)
	if enc == nil {
		return r
	}
	return transform.NewReader(r, encoding.ReplaceUnsupported(enc.NewEncoder()))
}
