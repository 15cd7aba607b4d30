package serp

import "strings"

// LinkedInCompanyHint restricts results to LinkedIn company pages.
const LinkedInCompanyHint = "site:linkedin.com/company"

// BuildQuery turns a company name into a search query: the name as an exact
// phrase followed by LinkedInCompanyHint. The same name always yields the
// same query.
func BuildQuery(companyName string) string {
	name := strings.Join(strings.Fields(companyName), " ")
	name = strings.ReplaceAll(name, `"`, "")
	name = strings.TrimSpace(strings.Trim(name, "'"))
	if name == "" {
		return LinkedInCompanyHint
	}
	return `"` + name + `" ` + LinkedInCompanyHint
}
