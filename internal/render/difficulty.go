package render

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Bucket is a canonical difficulty level.
type Bucket int

const (
	BucketRecall Bucket = iota
	BucketComprehension
	BucketApplication
	BucketHighApplication
)

// Buckets lists the buckets in document order.
var Buckets = []Bucket{BucketRecall, BucketComprehension, BucketApplication, BucketHighApplication}

var bucketHeadings = map[Bucket]string{
	BucketRecall:          "I. CÂU HỎI NHẬN BIẾT",
	BucketComprehension:   "II. CÂU HỎI THÔNG HIỂU",
	BucketApplication:     "III. CÂU HỎI VẬN DỤNG",
	BucketHighApplication: "IV. CÂU HỎI VẬN DỤNG CAO",
}

var bucketNames = map[Bucket]string{
	BucketRecall:          "recall",
	BucketComprehension:   "comprehension",
	BucketApplication:     "application",
	BucketHighApplication: "high-application",
}

// Heading returns the section heading for the bucket.
func (b Bucket) Heading() string { return bucketHeadings[b] }

func (b Bucket) String() string { return bucketNames[b] }

// Checked in order; "vận dụng cao" must be tested before "vận dụng".
var bucketRules = []struct {
	bucket Bucket
	needle []string
}{
	{BucketHighApplication, []string{"cao", "high", "advanced"}},
	{BucketApplication, []string{"dung", "apply", "applic"}},
	{BucketComprehension, []string{"thong", "hieu", "comprehen", "understand"}},
	{BucketRecall, []string{"nhan", "biet", "recall", "remember", "know", "recogn"}},
}

// Classify maps a free-form difficulty tag to exactly one bucket.
// Unrecognised tags fall into BucketApplication.
func Classify(tag string) Bucket {
	folded := Fold(tag)
	for _, rule := range bucketRules {
		for _, n := range rule.needle {
			if strings.Contains(folded, n) {
				return rule.bucket
			}
		}
	}
	return BucketApplication
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and removes Vietnamese diacritics.
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, strings.ToLower(s))
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.ReplaceAll(out, "đ", "d")
}
