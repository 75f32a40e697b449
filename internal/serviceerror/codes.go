/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package serviceerror

// Machine error codes reported in the Errors[].ErrorCode field
const (
	FieldMissing               = "OB.Field.Missing"
	FieldInvalid               = "OB.Field.Invalid"
	InvalidFormat              = "OB.Resource.InvalidFormat"
	ResourceConsentMismatch    = "OB.Resource.ConsentMismatch"
	InvalidConsentStatus       = "OB.Resource.InvalidConsentStatus"
	ResourceNotFound           = "OB.Resource.NotFound"
	ResourceConflict           = "OB.Resource.Conflict"
	AfterCutOffDateTime        = "OB.Rules.AfterCutOffDateTime"
	UnexpectedError            = "OB.UnexpectedError"
	ConsentDataUnavailable     = "OB.Consent.DataUnavailable"
	UnsupportedLocalInstrument = "OB.Unsupported.LocalInstrument"
)
