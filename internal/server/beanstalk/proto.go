package beanstalk

import (
	"fmt"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/sunng87/clojalk/internal/core"
)

// tubeNameRe matches legal tube names: up to 200 chars of letters, digits,
// and + / ; . $ _ ( ) -, not starting with a hyphen.
var tubeNameRe = regexp.MustCompile(`^[A-Za-z0-9+/;.$_()][A-Za-z0-9+/;.$_()-]{0,199}$`)

func validTubeName(name string) bool {
	return tubeNameRe.MatchString(name)
}

func parseUint64(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

func parseInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func sprint(v interface{}) string {
	return fmt.Sprintf("%v", v)
}

// reply writes a bare keyword line.
func (c *conn) reply(keyword string) {
	_, _ = c.w.WriteString(keyword)
	_, _ = c.w.WriteString("\r\n")
}

// replyf writes a formatted keyword line.
func (c *conn) replyf(format string, args ...interface{}) {
	fmt.Fprintf(c.w, format, args...)
	_, _ = c.w.WriteString("\r\n")
}

// replyJob writes a keyword line followed by the job body chunk:
//
//	<keyword> <id> <bytes>\r\n<body>\r\n
func (c *conn) replyJob(keyword string, j *core.Job) {
	fmt.Fprintf(c.w, "%s %d %d\r\n", keyword, j.ID, len(j.Body))
	_, _ = c.w.Write(j.Body)
	_, _ = c.w.WriteString("\r\n")
}

// replyYAML writes OK <bytes>\r\n followed by the YAML rendering of v.
func (c *conn) replyYAML(v interface{}) {
	b, err := yaml.Marshal(v)
	if err != nil {
		c.reply("INTERNAL_ERROR")
		return
	}
	body := append([]byte("---\n"), b...)
	fmt.Fprintf(c.w, "OK %d\r\n", len(body))
	_, _ = c.w.Write(body)
	_, _ = c.w.WriteString("\r\n")
}
