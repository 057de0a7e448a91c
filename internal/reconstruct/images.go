package reconstruct

import (
	"regexp"
	"strings"
)

// DefaultImageLabel labels images that carry no classification.
const DefaultImageLabel = "Image"

var markdownImage = regexp.MustCompile(`!\[.*?\]\((.*?)\)`)

// CollectMarkdownImages extracts inline image links from a markdown rendering.
// Segments between page-break markers are pages, numbered from 1.
func CollectMarkdownImages(md, pageBreak string) []ImageJob {
	if md == "" {
		return nil
	}

	segments := []string{md}
	if pageBreak != "" {
		segments = strings.Split(md, pageBreak)
	}

	var jobs []ImageJob
	for i, segment := range segments {
		for _, m := range markdownImage.FindAllStringSubmatch(segment, -1) {
			jobs = append(jobs, ImageJob{
				Page:  i + 1,
				URI:   m[1],
				Label: DefaultImageLabel,
			})
		}
	}
	return jobs
}
