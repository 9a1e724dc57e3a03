package retrieval

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// JobPosting is the payload stored for job_posting and skill entities.
type JobPosting struct {
	ID             int    `mapstructure:"job_posting_id" json:"id"`
	PositionName   string `mapstructure:"position_name" json:"position_name"`
	CompanyName    string `mapstructure:"name_of_company" json:"company_name"`
	JobDescription string `mapstructure:"job_description" json:"job_description"`
	Requirements   string `mapstructure:"requirements" json:"requirements"`
	Salary         string `mapstructure:"salary" json:"salary"`
	Deadline       string `mapstructure:"deadline" json:"deadline"`
	ExperienceYear string `mapstructure:"experience_year" json:"experience_year,omitempty"`
	EducationLevel string `mapstructure:"education_level" json:"education_level"`
	Benefits       string `mapstructure:"benefits" json:"benefits"`
	WorkingTime    string `mapstructure:"working_time" json:"working_time"`
	Industries     string `mapstructure:"industries" json:"industries"`
	Skills         string `mapstructure:"skills" json:"skills"`
	Addresses      string `mapstructure:"addresses" json:"addresses"`
}

// Company is the payload stored for company entities.
type Company struct {
	ID          int    `mapstructure:"company_id" json:"id"`
	Name        string `mapstructure:"name" json:"name"`
	Website     string `mapstructure:"website" json:"website"`
	Size        string `mapstructure:"size" json:"size"`
	Description string `mapstructure:"description" json:"description"`
	Addresses   string `mapstructure:"addresses" json:"addresses"`
	Industries  string `mapstructure:"industries" json:"industries"`
}

func DecodeJobPosting(payload map[string]any) (JobPosting, error) {
	var job JobPosting
	if err := decode(payload, &job); err != nil {
		return JobPosting{}, fmt.Errorf("decode job posting: %w", err)
	}
	return job, nil
}

func DecodeCompany(payload map[string]any) (Company, error) {
	var company Company
	if err := decode(payload, &company); err != nil {
		return Company{}, fmt.Errorf("decode company: %w", err)
	}
	return company, nil
}

func decode(payload map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       joinListsHook,
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(payload)
}

// joinListsHook flattens list payload values (skills, addresses) into one
// comma separated string.
func joinListsHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	if from.Kind() != reflect.Slice && from.Kind() != reflect.Array {
		return data, nil
	}

	v := reflect.ValueOf(data)
	parts := make([]string, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		item := v.Index(i).Interface()
		if item == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(item))
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", "), nil
}
