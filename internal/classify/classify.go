package classify

import (
	"net/url"
	"path"
	"strings"
)

// ContentType 表示提交物的粗粒度内容类别。
type ContentType string

const (
	TypeCodeRepository ContentType = "code-repository"
	TypeSocialPost     ContentType = "social-post"
	TypeVideo          ContentType = "video"
	TypeImage          ContentType = "image"
	TypePlainText      ContentType = "plain-text"
	TypeUnknown        ContentType = "unknown"
)

// hostTable 将主机名后缀映射到内容类别。匹配采用后缀规则，
// 因此 gist.github.com 同样命中 github.com。
var hostTable = []struct {
	suffix string
	kind   ContentType
}{
	{"github.com", TypeCodeRepository},
	{"gitlab.com", TypeCodeRepository},
	{"bitbucket.org", TypeCodeRepository},
	{"codeberg.org", TypeCodeRepository},
	{"twitter.com", TypeSocialPost},
	{"x.com", TypeSocialPost},
	{"reddit.com", TypeSocialPost},
	{"linkedin.com", TypeSocialPost},
	{"mastodon.social", TypeSocialPost},
	{"farcaster.xyz", TypeSocialPost},
	{"youtube.com", TypeVideo},
	{"youtu.be", TypeVideo},
	{"vimeo.com", TypeVideo},
	{"twitch.tv", TypeVideo},
	{"imgur.com", TypeImage},
	{"flickr.com", TypeImage},
	{"pastebin.com", TypePlainText},
}

// extTable 将文件扩展名映射到内容类别，作为主机规则之后的补充判断。
var extTable = map[string]ContentType{
	".png":  TypeImage,
	".jpg":  TypeImage,
	".jpeg": TypeImage,
	".gif":  TypeImage,
	".webp": TypeImage,
	".svg":  TypeImage,
	".mp4":  TypeVideo,
	".mov":  TypeVideo,
	".webm": TypeVideo,
	".avi":  TypeVideo,
	".txt":  TypePlainText,
	".md":   TypePlainText,
	".rst":  TypePlainText,
}

// Classify 根据 URL 与备注推断内容类别。纯函数：相同输入永远得到相同输出，
// 未命中任何规则时返回 unknown。
func Classify(rawURL, notes string) ContentType {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		if strings.TrimSpace(notes) != "" {
			return TypePlainText
		}
		return TypeUnknown
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return TypeUnknown
	}

	host := strings.ToLower(parsed.Hostname())
	for _, rule := range hostTable {
		if host == rule.suffix || strings.HasSuffix(host, "."+rule.suffix) {
			return rule.kind
		}
	}

	if ext := strings.ToLower(path.Ext(parsed.Path)); ext != "" {
		if kind, ok := extTable[ext]; ok {
			return kind
		}
	}

	return TypeUnknown
}
