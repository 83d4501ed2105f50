package bot

import "fmt"

func pluralize(singular string, plural string, count int) string {
	s := plural
	if count == 1 {
		s = singular
	}
	return fmt.Sprintf("%d %s", count, s)
}
