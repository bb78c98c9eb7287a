package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	contentTypesPart = "[Content_Types].xml"
	docxDefaultPart  = "word/document.xml"
	openDocumentPart = "content.xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	docxText = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	pptxText = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	// OpenDocument paragraphs, headings and spans, in document order.
	odfText = regexp.MustCompile(`<text:(?:p|h|span)[^>]*>([^<]*)</text:(?:p|h|span)>`)

	overrideTag = regexp.MustCompile(`<Override\s[^>]*>`)
	partNameRe  = regexp.MustCompile(`PartName="([^"]+)"`)
	slideNumber = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

// officePackage is an opened OOXML or OpenDocument zip.
type officePackage struct {
	zr *zip.Reader
}

func openPackage(content []byte) (*officePackage, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not a zip package: %w", err)
	}
	return &officePackage{zr: zr}, nil
}

// read returns the named part, or nil when the package does not have it.
func (p *officePackage) read(name string) ([]byte, error) {
	for _, f := range p.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}

// mainDocumentPart finds the word body from [Content_Types].xml; attribute order varies
// between producers.
func (p *officePackage) mainDocumentPart() string {
	ct, err := p.read(contentTypesPart)
	if err != nil || ct == nil {
		return docxDefaultPart
	}
	for _, tag := range overrideTag.FindAll(ct, -1) {
		if !bytes.Contains(tag, []byte(`ContentType="`+docxMainType+`"`)) {
			continue
		}
		if m := partNameRe.FindSubmatch(tag); m != nil {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return docxDefaultPart
}

// joinMatches joins the first capture group of every match with single spaces.
func joinMatches(re *regexp.Regexp, xml []byte, b *strings.Builder) {
	for _, m := range re.FindAllSubmatch(xml, -1) {
		text := strings.TrimSpace(unescapeXML(string(m[1])))
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return xmlEntities.Replace(s)
}

func extractDOCX(content []byte) (string, error) {
	pkg, err := openPackage(content)
	if err != nil {
		return "", err
	}
	part := pkg.mainDocumentPart()
	xml, err := pkg.read(part)
	if err != nil {
		return "", err
	}
	if xml == nil {
		return "", fmt.Errorf("%s not found", part)
	}
	var b strings.Builder
	joinMatches(docxText, xml, &b)
	return b.String(), nil
}

// extractPPTX reads slides in slide-number order, so slide10 follows slide9.
func extractPPTX(content []byte) (string, error) {
	pkg, err := openPackage(content)
	if err != nil {
		return "", err
	}
	type slide struct {
		n    int
		name string
	}
	var slides []slide
	for _, f := range pkg.zr.File {
		m := slideNumber.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{n: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var b strings.Builder
	for _, s := range slides {
		xml, err := pkg.read(s.name)
		if err != nil {
			return "", err
		}
		joinMatches(pptxText, xml, &b)
	}
	return b.String(), nil
}

// extractOpenDocument serves both presentations (.odp) and spreadsheets (.ods).
func extractOpenDocument(content []byte) (string, error) {
	pkg, err := openPackage(content)
	if err != nil {
		return "", err
	}
	xml, err := pkg.read(openDocumentPart)
	if err != nil {
		return "", err
	}
	if xml == nil {
		return "", fmt.Errorf("%s not found", openDocumentPart)
	}
	var b strings.Builder
	joinMatches(odfText, xml, &b)
	return b.String(), nil
}
