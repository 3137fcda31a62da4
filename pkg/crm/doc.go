// Package crm implements the customer, follow-up, user and settings
// operations of the CRM on top of the document store.
//
// Every read is narrowed by the caller's scope before pagination. Every
// mutation follows the same sequence:
//
//  1. load the record through the caller's scope (out of scope is not found)
//  2. evaluate the record-level rule
//  3. apply a conditional update whose filter repeats the rule's conditions
//  4. diff the before and after documents
//  5. record the audit entry
package crm
