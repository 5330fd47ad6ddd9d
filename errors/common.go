package errors

import "fmt"

func InvalidParamsErr(err error) error {
	return E(Invalid, "invalid params", err)
}

func InvalidBodyErr(err error) error {
	return E(Invalid, "invalid request body", err)
}

func ValidationFailedErr(err error) error {
	return E(Invalid, "validation failed", err)
}

func EmptyParamErr(field string) error {
	ve := ValidationErrs()
	ve.Add(field, "cannot be empty")
	return E(Invalid, "validation failed", ve.Err())
}

// TxNotFoundErr returns a formated error for a transaction lookup miss
func TxNotFoundErr(identifier string) error {
	return E(NotFound, fmt.Sprintf("no transaction matches %q", identifier), nil)
}

func UnknownCommandErr(command string) error {
	return EC(Invalid, "CMD001", fmt.Sprintf("unknown command %q", command))
}
