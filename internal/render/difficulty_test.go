package render

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		tag  string
		want Bucket
	}{
		{"Nhận biết", BucketRecall},
		{"nhan_biet", BucketRecall},
		{"Thông hiểu", BucketComprehension},
		{"THONG HIEU", BucketComprehension},
		{"Vận dụng", BucketApplication},
		{"van_dung", BucketApplication},
		{"Vận dụng cao", BucketHighApplication},
		{"VẬN DỤNG CAO", BucketHighApplication},
		{"recall", BucketRecall},
		{"Understanding", BucketComprehension},
		{"Application", BucketApplication},
		{"high", BucketHighApplication},
		{"", BucketApplication},
		{"mức 7", BucketApplication},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.tag))
		})
	}
}

func TestClassifyAlwaysReturnsOneBucket(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("abcdeghiknortuyđĐăâêôơưáàảãạ _-0123456789")

	valid := map[Bucket]bool{}
	for _, b := range Buckets {
		valid[b] = true
	}

	for i := 0; i < 1000; i++ {
		n := rng.Intn(20)
		tag := make([]rune, n)
		for j := range tag {
			tag[j] = alphabet[rng.Intn(len(alphabet))]
		}
		assert.True(t, valid[Classify(string(tag))], string(tag))
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "van dung cao", Fold("Vận Dụng Cao"))
	assert.Equal(t, "dung sai", Fold("Đúng sai"))
}

func TestBucketHeadings(t *testing.T) {
	assert.Equal(t, "I. CÂU HỎI NHẬN BIẾT", BucketRecall.Heading())
	assert.Equal(t, "IV. CÂU HỎI VẬN DỤNG CAO", BucketHighApplication.Heading())
	assert.Equal(t, "comprehension", BucketComprehension.String())
}
